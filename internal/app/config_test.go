package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyPlatformDefaults(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		env  map[string]string
		want Config
	}{
		{
			name: "platform variables",
			cfg:  Config{Addr: defaultAddr, RedisURL: "redis://localhost:6379/0"},
			env:  map[string]string{"DATABASE_URL": "postgres://db", "REDIS_URL": "redis://cache:6379", "PORT": "9000"},
			want: Config{Addr: "0.0.0.0:9000", DatabaseURL: "postgres://db", RedisURL: "redis://cache:6379"},
		},
		{
			name: "prefixed values win",
			cfg:  Config{Addr: "127.0.0.1:8081", DatabaseURL: "postgres://mine", RedisURL: "redis://mine"},
			env: map[string]string{
				"DATABASE_URL": "postgres://db", "REDIS_URL": "redis://cache:6379",
				"HAWKER_REDIS_URL": "redis://mine", "PORT": "9000",
			},
			want: Config{Addr: "127.0.0.1:8081", DatabaseURL: "postgres://mine", RedisURL: "redis://mine"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.applyPlatformDefaults(func(k string) string { return tt.env[k] })
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := Config{DatabaseURL: "postgres://db", Checkout: CheckoutConfig{PaymentWindow: 5 * time.Minute}}
	assert.NoError(t, valid.validate())

	noDB := valid
	noDB.DatabaseURL = ""
	assert.Error(t, noDB.validate())

	negFee := valid
	negFee.Checkout.ServiceFeeCents = -1
	assert.Error(t, negFee.validate())

	noWindow := valid
	noWindow.Checkout.PaymentWindow = 0
	assert.Error(t, noWindow.validate())
}
