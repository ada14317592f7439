// internal/notification/email.go
package notification

import (
	"fmt"
	"html"
	"strings"

	"autohaven/internal/models"
)

// buildEmailHTML renders the sales email body from a READY listing.
func buildEmailHTML(listing *models.CarListing) string {
	var b strings.Builder

	b.WriteString("<html><body>")
	b.WriteString("<h2>Hello,</h2>")
	fmt.Fprintf(&b, "<p>We have a new car for you: %s %s from %d at %.0f.</p>",
		html.EscapeString(listing.Brand), html.EscapeString(listing.Model), listing.Year, listing.Price)

	if listing.ImageURL != "" {
		fmt.Fprintf(&b, `<p><img src=%q alt="%s %s" style="max-width: 100%%; height: auto;"/></p>`,
			listing.ImageURL, html.EscapeString(listing.Brand), html.EscapeString(listing.Model))
	}

	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(*listing.Description))

	b.WriteString("<h3>Pros</h3><p>")
	for i, pro := range listing.Pros {
		if i > 0 {
			b.WriteString("<br>")
		}
		fmt.Fprintf(&b, "- %s", html.EscapeString(pro))
	}
	b.WriteString("</p>")

	b.WriteString("<h3>Cons</h3><p>")
	for i, con := range listing.Cons {
		if i > 0 {
			b.WriteString("<br>")
		}
		fmt.Fprintf(&b, "- %s", html.EscapeString(con))
	}
	b.WriteString("</p>")

	b.WriteString("</body></html>")
	return b.String()
}

// buildEmailText is the plain-text alternative for clients that skip HTML.
func buildEmailText(listing *models.CarListing) string {
	var b strings.Builder

	fmt.Fprintf(&b, "We have a new car for you: %s %s from %d at %.0f.\n\n",
		listing.Brand, listing.Model, listing.Year, listing.Price)
	b.WriteString(*listing.Description)
	b.WriteString("\n\nPros:\n")
	for _, pro := range listing.Pros {
		fmt.Fprintf(&b, "- %s\n", pro)
	}
	b.WriteString("\nCons:\n")
	for _, con := range listing.Cons {
		fmt.Fprintf(&b, "- %s\n", con)
	}

	return b.String()
}
