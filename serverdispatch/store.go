package serverdispatch

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stayhq/phoneauth/internal"
)

const codeRecordVersionV1 = 1

var (
	// ErrCodeNotFound means no pending code exists for the phone number,
	// either because none was issued or it already expired.
	ErrCodeNotFound = errors.New("no pending code for phone number")
	// ErrCodeMismatch means the submitted code does not match.
	ErrCodeMismatch = errors.New("verification code mismatch")
	// ErrAttemptsExceeded means the pending code burned its attempt
	// budget and was discarded.
	ErrAttemptsExceeded = errors.New("verification attempts exceeded")
	// ErrStoreUnavailable wraps Redis transport failures.
	ErrStoreUnavailable = errors.New("dispatch store unavailable")
)

// codeRecord is one pending server-dispatched code, keyed by phone
// number. A re-send overwrites the record so only the newest code
// verifies.
type codeRecord struct {
	CodeHash []byte
	IssuedAt int64
	Attempts uint16
}

// Store persists pending codes in Redis, hashed at rest.
type Store struct {
	redis       *redis.Client
	prefix      string
	codeTTL     time.Duration
	maxAttempts int
}

// StoreConfig tunes a Store. Zero values get the dispatch defaults.
type StoreConfig struct {
	Prefix      string
	CodeTTL     time.Duration
	MaxAttempts int
}

// NewStore builds a code store on redisClient.
func NewStore(redisClient *redis.Client, cfg StoreConfig) (*Store, error) {
	if redisClient == nil {
		return nil, errors.New("redis client required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "sdc"
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}

	return &Store{
		redis:       redisClient,
		prefix:      cfg.Prefix,
		codeTTL:     cfg.CodeTTL,
		maxAttempts: cfg.MaxAttempts,
	}, nil
}

func (s *Store) key(phoneNumber string) string {
	return s.prefix + ":" + phoneNumber
}

// Issue stores a fresh code for phoneNumber, replacing any pending one.
func (s *Store) Issue(ctx context.Context, phoneNumber, code string) error {
	hash := internal.HashSecretBytes([]byte(code))
	record := &codeRecord{
		CodeHash: hash[:],
		IssuedAt: time.Now().Unix(),
	}

	encoded, err := encodeCodeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(phoneNumber), encoded, s.codeTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Consume verifies code against the pending record for phoneNumber. A
// match deletes the record so the code is one-time use. A mismatch
// increments the attempt counter under WATCH; hitting the cap discards
// the record.
func (s *Store) Consume(ctx context.Context, phoneNumber, code string) error {
	const maxRetries = 4
	key := s.key(phoneNumber)
	submittedHash := internal.HashSecretBytes([]byte(code))
	submitted := submittedHash[:]

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeCodeRecord(data)
			if err != nil {
				return err
			}

			if subtle.ConstantTimeCompare(record.CodeHash, submitted) == 1 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			record.Attempts++
			if int(record.Attempts) >= s.maxAttempts {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrAttemptsExceeded
			}

			ttl, err := tx.TTL(ctx, key).Result()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = s.codeTTL
			}

			updated, err := encodeCodeRecord(record)
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
			return ErrCodeMismatch
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return ErrCodeNotFound
			case errors.Is(err, ErrCodeMismatch), errors.Is(err, ErrAttemptsExceeded):
				return err
			default:
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}

		return nil
	}

	return ErrCodeNotFound
}

func encodeCodeRecord(record *codeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(codeRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}

	if len(record.CodeHash) > 255 {
		return nil, errors.New("code hash too long")
	}
	buf.WriteByte(byte(len(record.CodeHash)))
	buf.Write(record.CodeHash)

	return buf.Bytes(), nil
}

func decodeCodeRecord(data []byte) (*codeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid code record version")
	}

	record := &codeRecord{}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}

	hashLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.CodeHash = make([]byte, hashLen)
	if _, err := io.ReadFull(reader, record.CodeHash); err != nil {
		return nil, err
	}

	return record, nil
}
