package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stripe/stripe-go/v83"

	"elmstone_back_end/internal/models"
)

// Erreurs fatales du pipeline : la commande n'est pas (ou plus) traitable,
// Stripe redélivrera l'événement.
var (
	ErrMissingDetails = errors.New("session sans shipping, customer ou montant")
	ErrMissingPrice   = errors.New("ligne Stripe sans prix")
	ErrMissingSKU     = errors.New("produit Stripe sans metadata.sku")
	ErrUnknownProduct = errors.New("produit introuvable au catalogue")
)

// OrderStore persiste les commandes et leurs lignes.
type OrderStore interface {
	InsertOrder(ctx context.Context, o models.Order) (bool, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	InsertOrderProducts(ctx context.Context, products []models.OrderProduct) error
	SetDispatched(ctx context.Context, orderID string) error
	SetStockAdjusted(ctx context.Context, orderID string) error
}

// ProductStore lit le catalogue et décrémente le stock.
type ProductStore interface {
	ProductsBySKU(ctx context.Context, skus []int) (map[int]models.Product, error)
	StockBySKU(ctx context.Context, skus []int) (map[int]int, error)
	CompareAndSetStock(ctx context.Context, sku, expected, next int) (bool, error)
}

// EventStore est l'autorité de déduplication des événements webhook.
type EventStore interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// EventCache est le chemin rapide (Redis) devant l'EventStore. Facultatif.
type EventCache interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// LineItemLister liste les lignes d'une session de paiement, produits inclus.
type LineItemLister interface {
	ListLineItems(ctx context.Context, sessionID string) ([]*stripe.LineItem, error)
}

// CarrierClient soumet la commande au transporteur.
type CarrierClient interface {
	SubmitOrder(ctx context.Context, req models.CarrierOrderRequest) (*models.CarrierOrderResponse, error)
}

// AnalyticsClient émet les événements d'achat côté analytics. Best-effort.
type AnalyticsClient interface {
	SendPurchase(ctx context.Context, clientID, sessionID string, order models.Order, items []models.CompoundLineItem) error
}

// Mailer envoie la confirmation de commande. Best-effort.
type Mailer interface {
	SendOrderConfirmation(order models.Order, items []models.CompoundLineItem) error
}

// ManifestArchiver archive la requête/réponse transporteur. Best-effort.
type ManifestArchiver interface {
	ArchiveManifest(ctx context.Context, orderID string, req models.CarrierOrderRequest, resp *models.CarrierOrderResponse) error
}

// OrderIndexer indexe la commande pour la recherche back-office. Best-effort.
type OrderIndexer interface {
	IndexOrder(order models.Order)
}

// StepFailure est un échec non fatal d'une étape secondaire. Surfacé dans
// l'Outcome plutôt qu'avalé : l'appelant (et ses alertes) le voient.
type StepFailure struct {
	Step string `json:"step"`
	Err  error  `json:"-"`
}

func (f StepFailure) Error() string {
	return fmt.Sprintf("étape %s: %v", f.Step, f.Err)
}

// Outcome est le résultat d'un passage du pipeline.
type Outcome struct {
	AlreadyProcessed bool
	Order            *models.Order
	Items            []models.CompoundLineItem
	Shipment         *Shipment
	CarrierErrors    []models.CarrierFieldError
	PartialFailures  []StepFailure
}

// Pipeline est l'unique implémentation de la chaîne checkout → expédition.
// Les deux déclencheurs (webhook direct, handler dispatché) ne sont que des
// adaptateurs minces autour de Run. Toutes les dépendances sont injectées :
// construites une fois au démarrage, passées par référence.
type Pipeline struct {
	Orders     OrderStore
	Products   ProductStore
	Events     EventStore
	EventCache EventCache
	Stripe     LineItemLister
	Carrier    CarrierClient
	Analytics  AnalyticsClient
	Mailer     Mailer
	Archiver   ManifestArchiver
	Indexer    OrderIndexer

	// Production active les effets de bord réels : décrément de stock et
	// soumission transporteur.
	Production bool

	// Now est remplaçable en test.
	Now func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Run exécute le pipeline complet pour une session complétée.
// La chaîne : déduplication → commande → lignes composées → lignes
// persistées → stock → transporteur, avec l'émission analytics et les
// à-côtés (email, archive, index) en parallèle, indépendants du résultat.
func (p *Pipeline) Run(ctx context.Context, eventID string, session *stripe.CheckoutSession) (*Outcome, error) {
	out := &Outcome{}

	// 1. Déduplication. Un événement redélivré ne doit ni créer une
	// deuxième commande ni re-décrémenter le stock.
	first, err := p.claimEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !first {
		log.Printf("🔁 Événement %s déjà traité, on ignore", eventID)
		out.AlreadyProcessed = true
		return out, nil
	}

	outcome, err := p.runClaimed(ctx, session, out)
	if err != nil {
		// Échec fatal : on libère la réservation pour que la redélivrance
		// Stripe refasse tourner le pipeline entier.
		p.releaseEvent(ctx, eventID)
		return nil, err
	}
	return outcome, nil
}

func (p *Pipeline) runClaimed(ctx context.Context, session *stripe.CheckoutSession, out *Outcome) (*Outcome, error) {
	// 2. Persister la commande. Si elle existe déjà (échec fatal d'un
	// passage précédent, réservation libérée), on la recharge et on
	// reprend la chaîne là où elle s'était arrêtée.
	order, resumed, err := p.persistOrder(ctx, session)
	if err != nil {
		return nil, err
	}
	out.Order = order
	if resumed {
		if order.Dispatched {
			// Déjà acceptée par le transporteur : plus rien à refaire.
			log.Printf("🔁 Commande %s déjà expédiée, reprise inutile", order.ID)
			out.AlreadyProcessed = true
			return out, nil
		}
		log.Printf("🔁 Reprise de la commande %s après un échec précédent", order.ID)
	} else {
		log.Printf("✅ Commande enregistrée : %s (%.2f)", order.ID, order.TotalValue)
	}

	// 3. Composer les lignes : lignes Stripe × produits catalogue.
	items, err := p.compoundLineItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	out.Items = items
	log.Printf("🛒 %d ligne(s) composée(s) pour %s", len(items), order.ID)

	// 4. Persister les lignes. Un échec ici ne bloque pas l'expédition mais
	// n'est plus invisible : il remonte dans l'Outcome. En reprise, la
	// réécriture est sans effet (même clé, mêmes valeurs).
	if err := p.Orders.InsertOrderProducts(ctx, orderProducts(order.ID, items)); err != nil {
		log.Printf("⚠️ Échec persistance lignes de commande %s: %v", order.ID, err)
		out.PartialFailures = append(out.PartialFailures, StepFailure{Step: "order_products", Err: err})
	}

	if p.Production {
		// 5. Décrémenter le stock (décrément conditionnel, voir stock.go).
		// Le marqueur par commande garantit qu'une reprise ne décrémente
		// jamais deux fois.
		if order.StockAdjusted {
			log.Printf("ℹ️ Stock déjà décrémenté pour %s, étape ignorée", order.ID)
		} else {
			if failures := p.adjustStock(ctx, items); len(failures) > 0 {
				out.PartialFailures = append(out.PartialFailures, failures...)
			}
			if err := p.Orders.SetStockAdjusted(ctx, order.ID); err != nil {
				log.Printf("⚠️ Impossible de marquer le stock ajusté pour %s: %v", order.ID, err)
				out.PartialFailures = append(out.PartialFailures, StepFailure{Step: "stock_marker", Err: err})
			}
			order.StockAdjusted = true
		}

		// 6-7. Calculer l'expédition et soumettre au transporteur.
		shipment := CalculateShipment(order.ID, items)
		out.Shipment = &shipment

		req := buildCarrierRequest(*order, items, shipment, p.now())
		resp, err := p.Carrier.SubmitOrder(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("soumission transporteur: %w", err)
		}
		if resp.ErrorsCount > 0 {
			// Erreurs de validation côté transporteur : remontées telles
			// quelles, la commande n'est PAS marquée expédiée.
			out.CarrierErrors = resp.Errors()
			log.Printf("❌ Transporteur a refusé %s: %d erreur(s)", order.ID, resp.ErrorsCount)
		} else {
			if err := p.Orders.SetDispatched(ctx, order.ID); err != nil {
				log.Printf("⚠️ Impossible de marquer %s expédiée: %v", order.ID, err)
				out.PartialFailures = append(out.PartialFailures, StepFailure{Step: "mark_dispatched", Err: err})
			}
			log.Printf("📦 Commande %s acceptée par le transporteur", order.ID)
		}

		// Archive du manifeste, best-effort.
		if p.Archiver != nil {
			go func() {
				actx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := p.Archiver.ArchiveManifest(actx, order.ID, req, resp); err != nil {
					log.Printf("⚠️ Échec archivage manifeste %s: %v", order.ID, err)
				}
			}()
		}
	} else {
		log.Printf("ℹ️ Environnement non production : stock et transporteur ignorés pour %s", order.ID)
	}

	// 8. Analytics, indépendant de la chaîne d'expédition. Un échec ici ne
	// change jamais la réponse au webhook, c'est voulu.
	go p.emitPurchase(*order, items, session.Metadata)

	// Confirmation client + indexation back-office, best-effort.
	if p.Mailer != nil {
		o, its := *order, items
		go func() {
			if err := p.Mailer.SendOrderConfirmation(o, its); err != nil {
				log.Printf("❌ Erreur envoi e-mail confirmation %s: %v", o.ID, err)
			} else {
				log.Println("📧 E-mail de confirmation envoyé à", o.Email)
			}
		}()
	}
	if p.Indexer != nil {
		go p.Indexer.IndexOrder(*order)
	}

	return out, nil
}

// claimEvent : chemin rapide Redis puis autorité Scylla.
func (p *Pipeline) claimEvent(ctx context.Context, eventID string) (bool, error) {
	if p.EventCache != nil {
		if first, err := p.EventCache.Claim(ctx, eventID); err != nil {
			// Redis indisponible : on retombe sur l'autorité.
			log.Printf("⚠️ Cache dédup indisponible: %v", err)
		} else if !first {
			return false, nil
		}
	}
	first, err := p.Events.Claim(ctx, eventID)
	if err != nil {
		return false, fmt.Errorf("déduplication événement %s: %w", eventID, err)
	}
	return first, nil
}

func (p *Pipeline) releaseEvent(ctx context.Context, eventID string) {
	if err := p.Events.Release(ctx, eventID); err != nil {
		log.Printf("⚠️ Impossible de libérer l'événement %s: %v", eventID, err)
	}
	if p.EventCache != nil {
		if err := p.EventCache.Release(ctx, eventID); err != nil {
			log.Printf("⚠️ Impossible de libérer le cache événement %s: %v", eventID, err)
		}
	}
}

// persistOrder vérifie les détails cruciaux de la session puis insère la
// commande. Session malformée → aucune écriture. Si la ligne existe déjà,
// c'est qu'un passage précédent a échoué après l'insertion et libéré la
// réservation : on recharge la commande existante et on signale la reprise
// au lieu d'échouer, sans quoi chaque redélivrance mourrait ici.
func (p *Pipeline) persistOrder(ctx context.Context, session *stripe.CheckoutSession) (*models.Order, bool, error) {
	shipping := shippingDetails(session)
	if shipping == nil || shipping.Address == nil || session.CustomerDetails == nil || session.AmountTotal == 0 {
		return nil, false, fmt.Errorf("session %s: %w", session.ID, ErrMissingDetails)
	}

	order := models.Order{
		ID:           session.ID,
		Email:        session.CustomerDetails.Email,
		Name:         shipping.Name,
		Street:       shipping.Address.Line1,
		City:         shipping.Address.City,
		PostalCode:   shipping.Address.PostalCode,
		Country:      string(shipping.Address.Country),
		TotalValue:   float64(session.AmountTotal) / 100,
		DeliveryCost: deliveryCost(session),
		PlacedAt:     p.now(),
	}

	created, err := p.Orders.InsertOrder(ctx, order)
	if err != nil {
		return nil, false, err
	}
	if !created {
		existing, err := p.Orders.GetOrder(ctx, session.ID)
		if err != nil {
			return nil, false, fmt.Errorf("relecture commande %s: %w", session.ID, err)
		}
		return existing, true, nil
	}
	return &order, false, nil
}

func (p *Pipeline) emitPurchase(order models.Order, items []models.CompoundLineItem, metadata map[string]string) {
	if p.Analytics == nil {
		return
	}
	clientID := metadata["gaClientID"]
	sessionID := metadata["gaSessionID"]
	if clientID == "" {
		log.Printf("ℹ️ Pas de gaClientID pour %s, événement purchase ignoré", order.ID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Analytics.SendPurchase(ctx, clientID, sessionID, order, items); err != nil {
		// Chemin "nice to have" : on logge, jamais plus.
		log.Printf("⚠️ Échec émission purchase GA4 pour %s: %v", order.ID, err)
	}
}

// shippingDetails lit l'adresse de livraison collectée par Stripe.
func shippingDetails(session *stripe.CheckoutSession) *stripe.CheckoutSessionCollectedInformationShippingDetails {
	if session.CollectedInformation == nil {
		return nil
	}
	return session.CollectedInformation.ShippingDetails
}

func deliveryCost(session *stripe.CheckoutSession) float64 {
	if session.TotalDetails == nil {
		return 0
	}
	return float64(session.TotalDetails.AmountShipping) / 100
}

func orderProducts(orderID string, items []models.CompoundLineItem) []models.OrderProduct {
	products := make([]models.OrderProduct, 0, len(items))
	for _, item := range items {
		products = append(products, models.OrderProduct{
			OrderID:   orderID,
			SKU:       item.Product.SKU,
			Quantity:  item.Quantity(),
			LineValue: item.LineValue(),
		})
	}
	return products
}
