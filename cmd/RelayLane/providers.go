package main

import (
	"time"

	"RelayLane/internal/biz"
	"RelayLane/internal/conf"
	"RelayLane/pkg/crypto"

	"google.golang.org/protobuf/types/known/durationpb"
)

// newCryptoService creates AES crypto service from config.
func newCryptoService(auth *conf.Auth) (*crypto.AESCrypto, error) {
	if auth == nil || auth.Encryption == nil || auth.Encryption.Key == "" {
		return nil, nil // Gracefully handle missing config
	}
	return crypto.NewAESCrypto(auth.Encryption.Key)
}

// newBridgeOptions translates bridge configuration into biz layer options.
// Missing values stay zero; the biz layer fills its own defaults.
func newBridgeOptions(c *conf.Bridge) *biz.BridgeOptions {
	opts := &biz.BridgeOptions{}
	if c == nil {
		return opts
	}

	opts.Primary = channelOptions(c.Primary)
	opts.Secondary = channelOptions(c.Secondary)

	if c.Breaker != nil {
		opts.Breaker = biz.BreakerOptions{
			FailureThreshold: c.Breaker.FailureThreshold,
			ResetTimeout:     asDuration(c.Breaker.ResetTimeout),
			SuccessQuota:     c.Breaker.SuccessQuota,
		}
	}
	if c.Queue != nil {
		opts.Queue = biz.QueueOptions{
			Capacity:    c.Queue.Capacity,
			MaxAttempts: c.Queue.MaxAttempts,
		}
	}
	return opts
}

// newQueueOptions extracts the offline queue tuning for the queue provider.
func newQueueOptions(opts *biz.BridgeOptions) biz.QueueOptions {
	return opts.Queue
}

func channelOptions(c *conf.Bridge_Channel) biz.ChannelOptions {
	if c == nil {
		return biz.ChannelOptions{}
	}
	return biz.ChannelOptions{
		HandshakeTimeout:     asDuration(c.HandshakeTimeout),
		CallTimeout:          asDuration(c.CallTimeout),
		HeartbeatInterval:    asDuration(c.HeartbeatInterval),
		HeartbeatTimeout:     asDuration(c.HeartbeatTimeout),
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		ReconnectBaseDelay:   asDuration(c.ReconnectBaseDelay),
		ReconnectMaxDelay:    asDuration(c.ReconnectMaxDelay),
	}
}

func asDuration(d *durationpb.Duration) time.Duration {
	if d == nil {
		return 0
	}
	return d.AsDuration()
}
