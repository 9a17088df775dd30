package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/minio/minio-go/v7"

	"elmstone_back_end/internal/database"
	"elmstone_back_end/internal/models"
)

// ManifestArchive conserve la requête et la réponse transporteur de chaque
// commande dans MinIO, pour l'audit des litiges d'expédition.
type ManifestArchive struct{}

type manifestDocument struct {
	OrderID  string                       `json:"order_id"`
	Request  models.CarrierOrderRequest   `json:"request"`
	Response *models.CarrierOrderResponse `json:"response"`
}

// ArchiveManifest écrit manifests/<order_id>.json dans le bucket configuré.
func (ManifestArchive) ArchiveManifest(ctx context.Context, orderID string, req models.CarrierOrderRequest, resp *models.CarrierOrderResponse) error {
	if database.MinIO == nil {
		return fmt.Errorf("minio non initialisé")
	}

	doc, err := json.MarshalIndent(manifestDocument{
		OrderID:  orderID,
		Request:  req,
		Response: resp,
	}, "", "  ")
	if err != nil {
		return err
	}

	bucket := os.Getenv("MINIO_MANIFESTS_BUCKET")
	objectName := "manifests/" + orderID + ".json"

	_, err = database.MinIO.PutObject(ctx, bucket, objectName,
		bytes.NewReader(doc), int64(len(doc)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("archivage manifeste %s: %w", orderID, err)
	}

	log.Printf("🗄️ Manifeste archivé : %s", objectName)
	return nil
}
