package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xavierca1/lead-pipeline/internal/entity"
)

func TestIsLeadWorthy(t *testing.T) {
	tests := []struct {
		name string
		in   WorthinessInput
		want bool
	}{
		{
			name: "bare page view with low confidence email",
			in:   WorthinessInput{EventType: entity.EventPageView, DeliverabilityScore: 20},
			want: false,
		},
		{
			name: "form submit with everything",
			in: WorthinessInput{
				EventType:           entity.EventFormSubmit,
				DeliverabilityScore: 95,
				HasVerifiedEmail:    true,
				HasBusinessEmail:    true,
				HasPhone:            true,
				HasName:             true,
				HasCompany:          true,
			},
			want: true,
		},
		{
			name: "high score but neither name nor company",
			in: WorthinessInput{
				EventType:           entity.EventFormSubmit,
				DeliverabilityScore: 95,
				HasVerifiedEmail:    true,
				HasBusinessEmail:    true,
				HasPhone:            true,
			},
			want: false,
		},
		{
			name: "resolved business contact without a name",
			in: WorthinessInput{
				EventType:        entity.EventIdentityResolved,
				HasVerifiedEmail: true,
				HasBusinessEmail: true,
				HasCompany:       true,
			},
			want: true,
		},
		{
			name: "named page view below threshold",
			in: WorthinessInput{
				EventType:           entity.EventPageView,
				DeliverabilityScore: 60,
				HasName:             true,
				HasPhone:            true,
				HasCompany:          true,
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				assert.Equal(t, tt.want, IsLeadWorthy(tt.in))
			}
		})
	}
}

func TestIntentScore(t *testing.T) {
	assert.Equal(t, 60, IntentScore(entity.EventFormSubmit, 1))
	assert.Equal(t, 30, IntentScore(entity.EventIdentityResolved, 1))
	assert.Equal(t, 20, IntentScore(entity.EventPageView, 3))
	assert.Equal(t, 40, IntentScore(entity.EventPageView, 50))
	assert.Equal(t, 90, IntentScore(entity.EventFormSubmit, 100))
	assert.Equal(t, 5, IntentScore(entity.EventUnknown, 0))
}
