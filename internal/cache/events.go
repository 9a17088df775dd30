package cache

import (
	"context"
	"time"

	"elmstone_back_end/internal/database"
)

// Stripe redélivre un webhook non acquitté jusqu'à 3 jours : la réservation
// Redis doit survivre plus longtemps que la fenêtre de redélivrance.
const EventClaimTTL = 72 * time.Hour

// Events est le chemin rapide de déduplication des webhooks : un SETNX
// Redis évite un aller-retour LWT vers Scylla pour les redélivrances
// évidentes. Redis n'est jamais l'autorité, la table processed_events l'est.
type Events struct{}

// Claim tente de réserver l'événement. false = déjà vu.
func (Events) Claim(ctx context.Context, eventID string) (bool, error) {
	return database.Redis.SetNX(ctx, "stripe_event:"+eventID, "1", EventClaimTTL).Result()
}

// Release libère la réservation après un échec du pipeline.
func (Events) Release(ctx context.Context, eventID string) error {
	return database.Redis.Del(ctx, "stripe_event:"+eventID).Err()
}
