package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifier_Normalize(t *testing.T) {
	t.Parallel()
	c := NewClassifier(nil)

	assert.Equal(t, "hvac", c.Normalize(" HVAC "))
	assert.Equal(t, "real-estate", c.Normalize("Real Estate"))
	assert.Equal(t, "restaurant", c.Normalize("restaurants"))
	assert.Equal(t, "other", c.Normalize("other"))
	assert.Equal(t, "", c.Normalize("aerospace"))
}

func TestClassifier_Classify(t *testing.T) {
	t.Parallel()
	c := NewClassifier(nil)

	tests := []struct {
		text string
		want string
	}{
		{"Furnace tune-ups and heat pump installs. Ductwork cleaning.", "hvac"},
		{"Personal injury attorney. Our law firm handles litigation.", "legal"},
		{"Family dentist accepting new patients at our dental clinic.", "medical"},
		{"View our menu and book reservations for dinner.", "restaurant"},
		{"We make great software.", "other"},
		{"", "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.text), tt.text)
	}
}
