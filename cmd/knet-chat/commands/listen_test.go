package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/packetflow/knet"
)

func TestPeerSetOthersExcludesGivenConnection(t *testing.T) {
	a := &knet.Connection{}
	b := &knet.Connection{}
	c := &knet.Connection{}

	peers := &peerSet{}
	peers.add(a)
	peers.add(b)
	peers.add(c)

	others := peers.others(b)
	assert.Len(t, others, 2)
	assert.NotContains(t, others, b)
	assert.Contains(t, others, a)
	assert.Contains(t, others, c)
}

func TestPeerSetOthersEmptyWhenNoPeersAdded(t *testing.T) {
	peers := &peerSet{}
	assert.Empty(t, peers.others(nil))
}
