package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// MembershipPolicy holds the tunables of the membership subsystem.
type MembershipPolicy struct {
	InviteTTL          time.Duration `mapstructure:"inviteTTL"`
	DefaultSeats       int           `mapstructure:"defaultSeats"`
	InviteRatePerMin   float64       `mapstructure:"inviteRatePerMin"`
	InviteRateBurst    int           `mapstructure:"inviteRateBurst"`
	NotifyTimeout      time.Duration `mapstructure:"notifyTimeout"`
	TransactionTimeout time.Duration `mapstructure:"transactionTimeout"`
}

func DefaultMembershipPolicy() MembershipPolicy {
	return MembershipPolicy{
		InviteTTL:          7 * 24 * time.Hour,
		DefaultSeats:       1,
		InviteRatePerMin:   10,
		InviteRateBurst:    20,
		NotifyTimeout:      10 * time.Second,
		TransactionTimeout: 15 * time.Second,
	}
}

type MembershipPolicyHolder struct {
	current atomic.Value // holds MembershipPolicy
}

// NewStaticMembershipPolicyHolder pins a policy without touching the filesystem.
func NewStaticMembershipPolicyHolder(policy MembershipPolicy) *MembershipPolicyHolder {
	holder := &MembershipPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewMembershipPolicyHolder(cfg Config, log *zap.Logger) (*MembershipPolicyHolder, error) {
	v := viper.New()

	if cfg.MembershipPolicyPath != "" {
		v.SetConfigFile(cfg.MembershipPolicyPath)
	} else {
		v.SetConfigName("membership")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/mailseat")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MAILSEAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	policy, err := decodeMembershipPolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticMembershipPolicyHolder(policy)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeMembershipPolicy(v)
			if err != nil {
				log.Warn("membership policy reload rejected, keeping previous", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("membership policy reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *MembershipPolicyHolder) Get() MembershipPolicy {
	return h.current.Load().(MembershipPolicy)
}

// decodeMembershipPolicy overlays the membership section on the defaults,
// so keys missing from the file keep their default value.
func decodeMembershipPolicy(v *viper.Viper) (MembershipPolicy, error) {
	policy := DefaultMembershipPolicy()
	if err := v.UnmarshalKey("membership", &policy); err != nil {
		return MembershipPolicy{}, err
	}
	if err := validateMembershipPolicy(policy); err != nil {
		return MembershipPolicy{}, err
	}
	return policy, nil
}

func validateMembershipPolicy(p MembershipPolicy) error {
	if p.InviteTTL <= 0 {
		return errors.New("membership.inviteTTL must be positive")
	}
	if p.DefaultSeats < 1 {
		return errors.New("membership.defaultSeats must be at least 1")
	}
	if p.InviteRatePerMin < 0 || p.InviteRateBurst < 0 {
		return errors.New("membership invite rate limits cannot be negative")
	}
	if p.NotifyTimeout <= 0 || p.TransactionTimeout <= 0 {
		return errors.New("membership timeouts must be positive")
	}
	return nil
}
