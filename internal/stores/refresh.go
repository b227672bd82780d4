package stores

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
)

const refreshRecordVersionV1 = 1

var (
	ErrRefreshNotFound    = errors.New("refresh record not found")
	ErrRefreshExpired     = errors.New("refresh record expired")
	ErrRefreshMismatch    = errors.New("refresh secret mismatch")
	ErrRefreshUnavailable = errors.New("refresh redis unavailable")
)

// rotateRefreshLua atomically performs GET→validate→SET on the refresh record.
// KEYS[1] = record key
// ARGV[1] = presented hash (32 bytes)
// ARGV[2] = replacement record bytes
// ARGV[3] = current unix timestamp (int string)
// ARGV[4] = replacement TTL in milliseconds (int string)
//
// Returns:
//
//	1 on success
//	error string: "not_found", "expired", "mismatch"
var rotateRefreshLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

-- Record layout: version(1) expiresAt(8 big-endian) secretHash(32)
local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 2, 9)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

if tonumber(ARGV[3]) > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

local storedHash = string.sub(data, 10, 41)
if storedHash ~= ARGV[1] then
  return {err='mismatch'}
end

redis.call('SET', KEYS[1], ARGV[2], 'PX', tonumber(ARGV[4]))
return 1
`)

// RefreshRecord is the stored state of the single active refresh token an
// account may hold. Only the secret hash is kept at rest.
type RefreshRecord struct {
	SecretHash [32]byte
	ExpiresAt  int64
}

// RefreshStore keeps one refresh record per account. Issue replaces any
// prior record, so minting a new pair invalidates the previous token.
type RefreshStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRefreshStore(redisClient redis.UniversalClient, prefix string) *RefreshStore {
	if prefix == "" {
		prefix = "id"
	}
	return &RefreshStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RefreshStore) key(accountID string) string {
	return s.prefix + ":rt:" + accountID
}

// Issue writes the record for accountID, replacing any existing one.
func (s *RefreshStore) Issue(ctx context.Context, accountID string, secretHash [32]byte, ttl time.Duration) error {
	record := &RefreshRecord{
		SecretHash: secretHash,
		ExpiresAt:  time.Now().Add(ttl).Unix(),
	}
	encoded, err := encodeRefreshRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(accountID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}
	return nil
}

// Rotate swaps the stored hash for nextHash if and only if presentedHash
// matches the current record. Exactly one of two concurrent callers
// presenting the same hash wins; the loser observes ErrRefreshMismatch.
func (s *RefreshStore) Rotate(
	ctx context.Context,
	accountID string,
	presentedHash [32]byte,
	nextHash [32]byte,
	ttl time.Duration,
) error {
	record := &RefreshRecord{
		SecretHash: nextHash,
		ExpiresAt:  time.Now().Add(ttl).Unix(),
	}
	encoded, err := encodeRefreshRecord(record)
	if err != nil {
		return err
	}

	result, err := rotateRefreshLua.Run(ctx, s.redis,
		[]string{s.key(accountID)},
		string(presentedHash[:]),
		string(encoded),
		time.Now().Unix(),
		ttl.Milliseconds(),
	).Result()

	if err != nil {
		switch err.Error() {
		case "not_found":
			return ErrRefreshNotFound
		case "expired":
			return ErrRefreshExpired
		case "mismatch":
			return ErrRefreshMismatch
		default:
			return fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
		}
	}

	if n, ok := result.(int64); !ok || n != 1 {
		return fmt.Errorf("%w: unexpected lua result", ErrRefreshUnavailable)
	}
	return nil
}

// Validate checks presentedHash against the current record without rotating.
// Expired records are deleted lazily.
func (s *RefreshStore) Validate(ctx context.Context, accountID string, presentedHash [32]byte) error {
	data, err := s.redis.Get(ctx, s.key(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrRefreshNotFound
		}
		return fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}

	record, err := decodeRefreshRecord(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}

	if time.Now().Unix() > record.ExpiresAt {
		_ = s.redis.Del(ctx, s.key(accountID)).Err()
		return ErrRefreshExpired
	}

	if subtle.ConstantTimeCompare(record.SecretHash[:], presentedHash[:]) != 1 {
		return ErrRefreshMismatch
	}
	return nil
}

// Revoke deletes the record for accountID. Deleting a missing record is not
// an error.
func (s *RefreshStore) Revoke(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, s.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}
	return nil
}

func encodeRefreshRecord(record *RefreshRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(refreshRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeRefreshRecord(data []byte) (*RefreshRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != refreshRecordVersionV1 {
		return nil, errors.New("invalid refresh record version")
	}

	record := &RefreshRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
