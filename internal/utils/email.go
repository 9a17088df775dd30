package utils

import (
	"bytes"
	"fmt"
	"log"
	"os"

	"github.com/skip2/go-qrcode"
	"github.com/wneessen/go-mail"

	"elmstone_back_end/internal/models"
)

// OrderMailer envoie les confirmations de commande aux clients.
type OrderMailer struct{}

// SendOrderConfirmation envoie l'e-mail de confirmation avec un QR code de
// suivi en pièce jointe.
func (OrderMailer) SendOrderConfirmation(order models.Order, items []models.CompoundLineItem) error {
	html := GenerateOrderConfirmationHTML(order, items)

	qr, err := TrackingQRCode(order.ID)
	if err != nil {
		log.Println("⚠️ Erreur génération QR code :", err)
		qr = nil
	}

	return SendConfirmationEmail(order.Email, "Confirmation de votre commande Elmstone", html, qr)
}

// TrackingQRCode génère un QR PNG pointant vers la page de suivi.
func TrackingQRCode(orderID string) ([]byte, error) {
	base := os.Getenv("STOREFRONT_BASE_URL")
	if base == "" {
		base = "https://elmstone.co.uk"
	}
	return qrcode.Encode(base+"/orders/"+orderID, qrcode.Medium, 256)
}

func SendConfirmationEmail(to, subject, htmlBody string, qrAttachment []byte) error {
	msg := mail.NewMsg()

	if err := msg.From("noreply@elmstone.co.uk"); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	if qrAttachment != nil {
		if err := msg.AttachReader("suivi_commande.png", bytes.NewReader(qrAttachment)); err != nil {
			return err
		}
	}

	client, err := mail.NewClient(os.Getenv("SMTP_HOST"),
		mail.WithPort(587),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(os.Getenv("SMTP_USERNAME")),
		mail.WithPassword(os.Getenv("SMTP_PASSWORD")),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return err
	}

	log.Println("📤 Envoi de l'e-mail à", to)
	return client.DialAndSend(msg)
}

// GenerateOrderConfirmationHTML génère le HTML de confirmation de commande
func GenerateOrderConfirmationHTML(order models.Order, items []models.CompoundLineItem) string {
	itemsHTML := ""
	for _, item := range items {
		itemsHTML += fmt.Sprintf(`
			<tr>
				<td>%s</td>
				<td>%d</td>
				<td>%.2f£</td>
			</tr>`, item.Product.Name, item.Quantity(), item.LineValue())
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
	<h2>Merci pour votre commande !</h2>
	<p>Bonjour %s,</p>
	<p>Nous avons bien reçu votre commande <strong>%s</strong>.</p>
	<table border="0" cellpadding="8" style="border-collapse: collapse;">
		<tr style="background: #f4f4f4;">
			<th align="left">Produit</th>
			<th align="left">Quantité</th>
			<th align="left">Montant</th>
		</tr>%s
	</table>
	<p>Livraison : %.2f£<br>
	<strong>Total : %.2f£</strong></p>
	<p>Adresse de livraison :<br>%s<br>%s, %s %s</p>
	<p>Scannez le QR code en pièce jointe pour suivre votre commande.</p>
	<p>— L'équipe Elmstone</p>
</body>
</html>`, order.Name, order.ID, itemsHTML, order.DeliveryCost, order.TotalValue,
		order.Street, order.City, order.PostalCode, order.Country)
}
