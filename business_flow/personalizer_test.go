package businessflow

import (
	"testing"

	"github.com/amirphl/gymdesk/models"
	"github.com/stretchr/testify/assert"
)

func TestPersonalize(t *testing.T) {
	full := &models.Client{
		Name:           "Ana",
		Plan:           strPtr("Premium"),
		Status:         models.ClientStatusActive,
		Phone:          strPtr("+525511112222"),
		Email:          strPtr("ana@example.com"),
		WhatsappNumber: strPtr("+525533334444"),
	}

	tests := []struct {
		name     string
		template string
		client   *models.Client
		want     string
	}{
		{
			name:     "all tokens",
			template: "{nombre}|{plan}|{estado}|{telefono}|{email}|{whatsapp}",
			client:   full,
			want:     "Ana|Premium|ACTIVE|+525511112222|ana@example.com|+525533334444",
		},
		{
			name:     "repeated token",
			template: "Hola {nombre}, {nombre}!",
			client:   full,
			want:     "Hola Ana, Ana!",
		},
		{
			name:     "missing fields render empty",
			template: "Plan: {plan}; Email: {email}",
			client:   &models.Client{Name: "Luis", Status: models.ClientStatusExpired},
			want:     "Plan: ; Email: ",
		},
		{
			name:     "unknown tokens stay verbatim",
			template: "Hola {nombre}, tu cita es {fecha}",
			client:   full,
			want:     "Hola Ana, tu cita es {fecha}",
		},
		{
			name:     "substituted values are not expanded again",
			template: "{nombre} / {plan}",
			client:   &models.Client{Name: "{plan}", Plan: strPtr("Basic")},
			want:     "{plan} / Basic",
		},
		{
			name:     "no tokens",
			template: "Te esperamos",
			client:   full,
			want:     "Te esperamos",
		},
		{
			name:     "nil client",
			template: "Hola {nombre}",
			client:   nil,
			want:     "Hola ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Personalize(tt.template, tt.client))
		})
	}
}
