package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotdog-curator/internal/models"
)

type stubConnector struct {
	name string
	ok   bool
}

func (s stubConnector) Name() string { return s.name }

func (s stubConnector) Search(context.Context, string, int) ([]*models.CandidateItem, error) {
	return nil, nil
}

func (s stubConnector) TestConnection(context.Context) ConnectionStatus {
	if s.ok {
		return ConnectionStatus{Success: true, Message: "ok"}
	}
	return ConnectionStatus{Message: "unauthorized"}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(stubConnector{name: "rss", ok: true})
	r.Register(stubConnector{name: "reddit"})
	r.Register(stubConnector{name: "rss", ok: true})

	assert.Equal(t, []string{"rss", "reddit"}, r.Names())

	c, err := r.Get("reddit")
	require.NoError(t, err)
	assert.Equal(t, "reddit", c.Name())

	_, err = r.Get("myspace")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestRegistry_TestAll(t *testing.T) {
	r := NewRegistry()
	r.Register(stubConnector{name: "rss", ok: true})
	r.Register(stubConnector{name: "reddit"})

	statuses := r.TestAll(context.Background())
	require.Len(t, statuses, 2)
	assert.Equal(t, ConnectionStatus{Source: "reddit", Message: "unauthorized"}, statuses[0])
	assert.Equal(t, ConnectionStatus{Source: "rss", Success: true, Message: "ok"}, statuses[1])
}
