package phoneauth

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeRecordVersionV1 = 1

var (
	errChallengeNotFound         = errors.New("challenge record not found")
	errChallengeAttemptsExceeded = errors.New("challenge attempts exceeded")
	errChallengeRedisUnavailable = errors.New("challenge redis unavailable")
)

// challengeRecord is the parked metadata for one in-flight challenge.
// The live provider session is held in process; this record is what
// survives and what attempt accounting runs against.
type challengeRecord struct {
	PhoneNumber string
	Provider    ChallengeProviderKind
	IssuedAt    int64
	ExpiresAt   int64
	Attempts    uint16
}

type challengeStore struct {
	redis  *redis.Client
	prefix string
}

func newChallengeStore(redisClient *redis.Client, prefix string) *challengeStore {
	return &challengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *challengeStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

// Save parks a challenge record under its ID. TTL is the code TTL; an
// expired record is unreachable even before cleanup.
func (s *challengeStore) Save(ctx context.Context, challengeID string, record *challengeRecord, ttl time.Duration) error {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}

	return nil
}

// Get loads a parked record. Missing or expired records return
// errChallengeNotFound.
func (s *challengeStore) Get(ctx context.Context, challengeID string) (*challengeRecord, error) {
	data, err := s.redis.Get(ctx, s.key(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}

	record, err := decodeChallengeRecord(data)
	if err != nil {
		return nil, err
	}

	if time.Now().Unix() > record.ExpiresAt {
		_ = s.redis.Del(ctx, s.key(challengeID)).Err()
		return nil, errChallengeNotFound
	}

	return record, nil
}

// RecordFailure increments the attempt counter under WATCH. Reaching
// maxAttempts deletes the record and reports errChallengeAttemptsExceeded;
// otherwise the remaining attempt budget is returned.
func (s *challengeStore) RecordFailure(ctx context.Context, challengeID string, maxAttempts int) (remaining int, err error) {
	const maxRetries = 4
	key := s.key(challengeID)

	for i := 0; i < maxRetries; i++ {
		err = s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChallengeRecord(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeNotFound
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeAttemptsExceeded
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeNotFound
			}

			updated, err := encodeChallengeRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			remaining = maxAttempts - int(record.Attempts)
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return 0, errChallengeNotFound
			case errors.Is(err, errChallengeNotFound), errors.Is(err, errChallengeAttemptsExceeded):
				return 0, err
			default:
				return 0, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
			}
		}

		return remaining, nil
	}

	return 0, errChallengeNotFound
}

// Delete discards a parked record. Missing records are not an error.
func (s *challengeStore) Delete(ctx context.Context, challengeID string) error {
	if err := s.redis.Del(ctx, s.key(challengeID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}
	return nil
}

func encodeChallengeRecord(record *challengeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(challengeRecordVersionV1)
	buf.WriteByte(byte(record.Provider))

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.PhoneNumber) > 65535 {
		return nil, errors.New("challenge record phone number too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.PhoneNumber))); err != nil {
		return nil, err
	}
	buf.WriteString(record.PhoneNumber)

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*challengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	provider, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &challengeRecord{
		Provider: ChallengeProviderKind(provider),
	}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var phoneLen uint16
	if err := binary.Read(reader, binary.BigEndian, &phoneLen); err != nil {
		return nil, err
	}

	phone := make([]byte, phoneLen)
	if _, err := io.ReadFull(reader, phone); err != nil {
		return nil, err
	}
	record.PhoneNumber = string(phone)

	return record, nil
}
