package store

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
)

// Events est la table de déduplication des événements webhook. Stripe livre
// au-moins-une-fois : une ligne par event_id garantit qu'un événement
// redélivré ne refait jamais tourner le pipeline.
type Events struct {
	Session *gocql.Session
}

// Claim réserve un événement. Retourne false si un autre passage l'a
// déjà réservé (événement déjà traité ou en cours de traitement).
func (s *Events) Claim(ctx context.Context, eventID string) (bool, error) {
	applied, err := s.Session.Query(
		`INSERT INTO processed_events (event_id, processed_at) VALUES (?, toTimestamp(now())) IF NOT EXISTS`,
		eventID,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("réservation événement %s: %w", eventID, err)
	}
	return applied, nil
}

// Release libère un événement dont le traitement a échoué, pour que la
// redélivrance Stripe puisse retenter le pipeline entier.
func (s *Events) Release(ctx context.Context, eventID string) error {
	return s.Session.Query(`DELETE FROM processed_events WHERE event_id = ?`, eventID).
		WithContext(ctx).Exec()
}
