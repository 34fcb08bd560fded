package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestServer_StartAfterStopReturnsNil(t *testing.T) {
	s := NewServer("127.0.0.1:0", http.NotFoundHandler(), zap.NewNop())

	assert.NoError(t, s.Stop(context.Background()))
	assert.NoError(t, s.Start())
}

func TestServer_StartReportsListenError(t *testing.T) {
	s := NewServer("127.0.0.1:-1", http.NotFoundHandler(), zap.NewNop())

	err := s.Start()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:-1")
}
