package businessflow

import (
	"strings"

	"github.com/amirphl/gymdesk/models"
)

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Personalize fills the client placeholders of a template in a single pass.
// Missing fields render as empty strings and unknown placeholders are kept.
func Personalize(template string, c *models.Client) string {
	if c == nil {
		c = &models.Client{}
	}
	r := strings.NewReplacer(
		"{nombre}", c.Name,
		"{plan}", deref(c.Plan),
		"{estado}", c.Status.String(),
		"{telefono}", deref(c.Phone),
		"{email}", deref(c.Email),
		"{whatsapp}", deref(c.WhatsappNumber),
	)
	return r.Replace(template)
}
