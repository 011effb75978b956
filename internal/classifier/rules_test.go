package classifier

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTermMatcher_Find(t *testing.T) {
	m := NewTermMatcher([]string{"Hot Dog", "hotdog", "", "hot dog"})

	assert.Equal(t, []string{"hot dog", "hotdog"}, m.Find("Best HOT-DOG... no, best Hot Dog!"))
	assert.Equal(t, []string{"hotdog"}, m.Find("#hotdogs forever"))
	assert.Empty(t, m.Find("burgers only"))
	assert.True(t, m.Contains("a hot dog stand"))
}

func TestTermMatcher_ConcurrentFind(t *testing.T) {
	m := NewTermMatcher(DefaultRequiredTerms)
	texts := []string{
		"chili dog and a corn dog",
		"bratwurst with sauerkraut",
		"hot dog stand downtown",
		"no topic here at all",
	}
	want := make([][]string, len(texts))
	for i, text := range texts {
		want[i] = m.Find(text)
	}

	var wg sync.WaitGroup
	errs := make(chan string, 64*len(texts))
	for g := 0; g < 64; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			i := g % len(texts)
			for n := 0; n < 50; n++ {
				if got := m.Find(texts[i]); !assert.ObjectsAreEqual(want[i], got) {
					errs <- texts[i]
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)

	for text := range errs {
		t.Errorf("concurrent Find lost hits for %q", text)
	}
}

func TestTermMatcher_Empty(t *testing.T) {
	var nilMatcher *TermMatcher
	assert.True(t, nilMatcher.Empty())
	assert.Nil(t, nilMatcher.Find("hot dog"))

	assert.True(t, NewTermMatcher([]string{" ", "!!"}).Empty())
}

func TestRules_Classify(t *testing.T) {
	rules := NewRules(DefaultRulesConfig())

	tests := []struct {
		name          string
		in            Input
		valid         bool
		spam          bool
		inappropriate bool
		unrelated     bool
		minConfidence float64
		maxConfidence float64
	}{
		{
			name:          "on topic with image",
			in:            Input{Text: "Chicago hot dog with sport peppers", ImageURL: "https://i/a.jpg"},
			valid:         true,
			minConfidence: 0.79,
			maxConfidence: 0.95,
		},
		{
			name:          "on topic via metadata title",
			in:            Input{Text: "look at this beauty", Metadata: map[string]string{"title": "Corn dog"}},
			valid:         true,
			minConfidence: 0.69,
			maxConfidence: 0.95,
		},
		{
			name:          "spam",
			in:            Input{Text: "Hot dog deals, use code DOG10 and click here"},
			spam:          true,
			minConfidence: 0.69,
			maxConfidence: 0.95,
		},
		{
			name:          "inappropriate",
			in:            Input{Text: "nsfw hot dog"},
			inappropriate: true,
			minConfidence: 0.69,
			maxConfidence: 0.95,
		},
		{
			name:          "marked nsfw by source",
			in:            Input{Text: "hot dog", Metadata: map[string]string{"nsfw": "true"}},
			inappropriate: true,
			minConfidence: 0.69,
			maxConfidence: 0.95,
		},
		{
			name:          "unrelated",
			in:            Input{Text: "my cat sleeping on the couch"},
			unrelated:     true,
			maxConfidence: 0.3,
		},
		{
			name:          "media only",
			in:            Input{VideoURL: "https://v/a.mp4"},
			minConfidence: 0.5,
			maxConfidence: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := rules.Classify(context.Background(), tt.in)
			require.NoError(t, err)

			assert.Equal(t, tt.valid, j.IsValid, "valid")
			assert.Equal(t, tt.spam, j.IsSpam, "spam")
			assert.Equal(t, tt.inappropriate, j.IsInappropriate, "inappropriate")
			assert.Equal(t, tt.unrelated, j.IsUnrelated, "unrelated")
			assert.GreaterOrEqual(t, j.Confidence, tt.minConfidence)
			assert.LessOrEqual(t, j.Confidence, tt.maxConfidence)
		})
	}
}

func TestRules_FlaggedPatterns(t *testing.T) {
	rules := NewRules(RulesConfig{SpamPatterns: []string{"promo code"}})

	j, err := rules.Classify(context.Background(), Input{Text: "Hot dog promo code inside"})
	require.NoError(t, err)
	assert.Contains(t, j.FlaggedPatterns, "spam:promo code")
}

func TestRules_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRules(DefaultRulesConfig()).Classify(ctx, Input{Text: "hot dog"})
	assert.Error(t, err)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-1))
	assert.Equal(t, 1.0, ClampConfidence(2))
	assert.Equal(t, 0.4, ClampConfidence(0.4))
}
