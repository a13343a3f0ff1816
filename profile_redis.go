package phoneauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const profileKeyPrefix = "app"

// RedisProfileStore keeps one hash per principal. The two-field
// verification update runs under WATCH so phone number and verified flag
// always change together.
type RedisProfileStore struct {
	redis  *redis.Client
	prefix string
}

func NewRedisProfileStore(redisClient *redis.Client) *RedisProfileStore {
	return &RedisProfileStore{
		redis:  redisClient,
		prefix: profileKeyPrefix,
	}
}

func (s *RedisProfileStore) key(principalID string) string {
	return s.prefix + ":" + principalID
}

func (s *RedisProfileStore) Get(ctx context.Context, principalID string) (*UserProfile, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(principalID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrProfileNotFound
	}
	return profileFromFields(principalID, fields), nil
}

func (s *RedisProfileStore) Create(ctx context.Context, profile *UserProfile) error {
	if profile == nil || profile.PrincipalID == "" {
		return errors.New("profile principal id required")
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now()
	}
	if err := s.redis.HSet(ctx, s.key(profile.PrincipalID), profileToFields(profile)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// SetVerifiedPhone writes phone number and verified=true in one
// transaction.
func (s *RedisProfileStore) SetVerifiedPhone(ctx context.Context, principalID, phoneNumber string) (*UserProfile, error) {
	return s.updatePhone(ctx, principalID, phoneNumber, true)
}

// UpdatePhoneNumber writes a new phone number and resets verified in the
// same transaction.
func (s *RedisProfileStore) UpdatePhoneNumber(ctx context.Context, principalID, phoneNumber string) (*UserProfile, error) {
	return s.updatePhone(ctx, principalID, phoneNumber, false)
}

func (s *RedisProfileStore) updatePhone(ctx context.Context, principalID, phoneNumber string, verified bool) (*UserProfile, error) {
	const maxRetries = 4
	key := s.key(principalID)

	var out *UserProfile
	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			fields, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			if len(fields) == 0 {
				return ErrProfileNotFound
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key,
					"phone_number", phoneNumber,
					"phone_verified", strconv.FormatBool(verified),
				)
				return nil
			})
			if err != nil {
				return err
			}

			fields["phone_number"] = phoneNumber
			fields["phone_verified"] = strconv.FormatBool(verified)
			out = profileFromFields(principalID, fields)
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrProfileNotFound) {
				return nil, ErrProfileNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: transaction retries exhausted", ErrBackendUnavailable)
}

func (s *RedisProfileStore) Delete(ctx context.Context, principalID string) error {
	if err := s.redis.Del(ctx, s.key(principalID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func profileToFields(p *UserProfile) map[string]any {
	return map[string]any{
		"full_name":      p.FullName,
		"email":          p.Email,
		"phone_number":   p.PhoneNumber,
		"phone_verified": strconv.FormatBool(p.PhoneVerified),
		"role":           string(p.Role),
		"referral_code":  p.ReferralCode,
		"created_at":     strconv.FormatInt(p.CreatedAt.Unix(), 10),
	}
}

func profileFromFields(principalID string, fields map[string]string) *UserProfile {
	verified, _ := strconv.ParseBool(fields["phone_verified"])
	createdUnix, _ := strconv.ParseInt(fields["created_at"], 10, 64)

	return &UserProfile{
		PrincipalID:   principalID,
		FullName:      fields["full_name"],
		Email:         fields["email"],
		PhoneNumber:   fields["phone_number"],
		PhoneVerified: verified,
		Role:          Role(fields["role"]),
		ReferralCode:  fields["referral_code"],
		CreatedAt:     time.Unix(createdUnix, 0),
	}
}
