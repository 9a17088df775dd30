package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"elmstone_back_end/internal/database"
	"elmstone_back_end/internal/models"
)

//
// --- INDEXATION DANS ELASTICSEARCH ---
//

// OrderIndex indexe les commandes pour la recherche back-office.
type OrderIndex struct{}

// IndexOrder indexe une commande. Best-effort : un échec est loggé,
// la commande reste introuvable en recherche jusqu'à la prochaine
// réindexation, c'est tout.
func (OrderIndex) IndexOrder(o models.Order) {
	if database.Elastic == nil {
		log.Println("⚠️ Elastic non initialisé, impossible d'indexer:", o.ID)
		return
	}

	data, _ := json.Marshal(o)
	req := esapi.IndexRequest{
		Index:      "orders",
		DocumentID: o.ID,
		Body:       bytes.NewReader(data),
		Refresh:    "true",
	}

	res, err := req.Do(context.Background(), database.Elastic)
	if err != nil {
		log.Println("❌ Erreur envoi Elastic:", err)
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Printf("⚠️ Elastic a renvoyé une erreur pour %s: %s", o.ID, res.String())
	} else {
		log.Printf("✅ Commande indexée dans Elasticsearch: %s", o.ID)
	}
}

//
// --- RECHERCHE DANS ELASTICSEARCH ---
//

// SearchOrders recherche les commandes par email, nom ou identifiant.
func (OrderIndex) SearchOrders(ctx context.Context, query string, limit int) ([]models.Order, error) {
	if database.Elastic == nil {
		return nil, fmt.Errorf("elastic non initialisé")
	}

	body := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"id^2", "email", "name", "postal_code"},
			},
		},
		"sort": []map[string]interface{}{
			{"placed_at": map[string]string{"order": "desc"}},
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	res, err := database.Elastic.Search(
		database.Elastic.Search.WithContext(ctx),
		database.Elastic.Search.WithIndex("orders"),
		database.Elastic.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("recherche Elastic: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("Elastic a répondu %s: %s", res.Status(), string(raw))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.Order `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("décodage réponse Elastic: %w", err)
	}

	orders := make([]models.Order, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		orders = append(orders, hit.Source)
	}
	return orders, nil
}
