package collaborators

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDappsMessageCounts(t *testing.T) {
	d := NewDapps(testLog())
	require.NoError(t, d.Message("dapp-1", json.RawMessage(`{"value":1}`)))
	require.NoError(t, d.Message("dapp-1", json.RawMessage(`{"value":2}`)))
	assert.Equal(t, 2, d.messages["dapp-1"])
}

func TestDappsRequestDispatchesRegisteredRoute(t *testing.T) {
	d := NewDapps(testLog())
	d.Register("dapp-1", "GET", "/ping", func(query map[string]string) (json.RawMessage, error) {
		return json.RawMessage(`{"pong":true}`), nil
	})

	resp, err := d.Request("dapp-1", "GET", "/ping", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pong":true}`, string(resp))
}

func TestDappsRequestUnregisteredRouteFails(t *testing.T) {
	d := NewDapps(testLog())
	_, err := d.Request("dapp-1", "GET", "/missing", nil)
	assert.Error(t, err)
}
