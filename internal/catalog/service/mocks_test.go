package service

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type ForwarderMock struct {
	mock.Mock
}

func (m *ForwarderMock) Forward(ctx context.Context, destChatID int64, messageRef string) (string, error) {
	args := m.Called(ctx, destChatID, messageRef)
	return args.String(0), args.Error(1)
}

// nopPacer keeps redelivery tests instant.
type nopPacer struct{}

func (nopPacer) Wait(ctx context.Context) error { return ctx.Err() }
