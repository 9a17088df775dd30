package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

func Load() {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("⚠️  Aucun fichier .env trouvé — on continue avec les variables d'environnement du système")
	} else {
		log.Println("✅ Fichier .env chargé avec succès")
	}
}

// IsProduction indique si les effets de bord réels (décrément de stock,
// soumission transporteur) doivent être exécutés.
func IsProduction() bool {
	return os.Getenv("APP_ENV") == "production"
}
