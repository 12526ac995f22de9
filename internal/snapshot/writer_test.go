package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyHTTPMergesNonZeroFields(t *testing.T) {
	prev := &Snapshot{
		HTTP: HTTPConfig{
			DefaultContentType: "text/plain",
			ServerName:         "old-name",
			MaxBodySize:        1024,
		},
	}

	partial := HTTPConfig{ServerName: "new-name"}
	next := ApplyHTTP(prev.Clone(), partial)

	assert.Equal(t, "new-name", next.HTTP.ServerName)
	assert.Equal(t, "text/plain", next.HTTP.DefaultContentType, "fields absent from the partial update should survive the merge")
	assert.Equal(t, int64(1024), next.HTTP.MaxBodySize, "fields absent from the partial update should survive the merge")
}

func TestApplyListenerWholesaleReplaces(t *testing.T) {
	prev := &Snapshot{
		Listener: ListenerConfig{Main: Endpoint{Host: "0.0.0.0", Port: 8080}},
	}
	next := ApplyListener(prev.Clone(), ListenerConfig{Main: Endpoint{Host: "0.0.0.0", Port: 9090}})
	assert.Equal(t, 9090, next.Listener.Main.Port)
}

func TestApplyVirtualHostsWholesaleReplaces(t *testing.T) {
	prev := &Snapshot{
		VirtualHosts: []VirtualHost{{Name: "old"}},
	}
	next := ApplyVirtualHosts(prev.Clone(), []VirtualHost{{Name: "new"}})
	require := assert.New(t)
	require.Len(next.VirtualHosts, 1)
	require.Equal("new", next.VirtualHosts[0].Name)
}
