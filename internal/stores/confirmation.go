package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const confirmationRecordVersionV1 = 1

var (
	ErrConfirmationNotFound    = errors.New("confirmation record not found")
	ErrConfirmationUnavailable = errors.New("confirmation redis unavailable")
)

// consumeConfirmationLua atomically performs GET→validate→DEL on a
// confirmation record. The record is deleted on every terminal outcome, so a
// key can never be presented twice.
// KEYS[1] = record key
// ARGV[1] = expected purpose (byte value as int string)
// ARGV[2] = current unix timestamp (int string)
//
// Returns:
//
//	record bytes on success
//	error string: "not_found", "expired", "purpose_mismatch"
var consumeConfirmationLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

-- Record layout: version(1) purpose(1) expiresAt(8 big-endian) accountIDLen(2) accountID
local purpose = string.byte(data, 2)

local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 3, 10)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

if tonumber(ARGV[2]) > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if purpose ~= tonumber(ARGV[1]) then
  redis.call('DEL', KEYS[1])
  return {err='purpose_mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// ConfirmationRecord binds a key hash to an account and a purpose for the
// lifetime of the key.
type ConfirmationRecord struct {
	AccountID string
	Purpose   byte
	ExpiresAt int64
}

// ConfirmationStore keeps single-use confirmation records addressed by the
// SHA-256 hash of the plaintext key.
type ConfirmationStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewConfirmationStore(redisClient redis.UniversalClient, prefix string) *ConfirmationStore {
	if prefix == "" {
		prefix = "id"
	}
	return &ConfirmationStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ConfirmationStore) key(keyHash [32]byte) string {
	return s.prefix + ":ck:" + hex.EncodeToString(keyHash[:])
}

// Save stores the record under the key hash. A re-issued key for the same
// account lives under a fresh hash; earlier keys stay valid until consumed
// or expired.
func (s *ConfirmationStore) Save(
	ctx context.Context,
	keyHash [32]byte,
	record *ConfirmationRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeConfirmationRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(keyHash), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfirmationUnavailable, err)
	}
	return nil
}

// Consume atomically looks up and deletes the record for keyHash. Missing,
// expired, and wrong-purpose keys are indistinguishable to the caller.
func (s *ConfirmationStore) Consume(
	ctx context.Context,
	keyHash [32]byte,
	expectedPurpose byte,
) (*ConfirmationRecord, error) {
	result, err := consumeConfirmationLua.Run(ctx, s.redis,
		[]string{s.key(keyHash)},
		int(expectedPurpose),
		time.Now().Unix(),
	).Result()

	if err != nil {
		switch err.Error() {
		case "not_found", "expired", "purpose_mismatch":
			return nil, ErrConfirmationNotFound
		default:
			return nil, fmt.Errorf("%w: %v", ErrConfirmationUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrConfirmationUnavailable)
	}

	record, decErr := decodeConfirmationRecord([]byte(data))
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfirmationUnavailable, decErr)
	}
	return record, nil
}

func encodeConfirmationRecord(record *ConfirmationRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(confirmationRecordVersionV1)
	buf.WriteByte(record.Purpose)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.AccountID) > 65535 {
		return nil, errors.New("confirmation record account id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)

	return buf.Bytes(), nil
}

func decodeConfirmationRecord(data []byte) (*ConfirmationRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != confirmationRecordVersionV1 {
		return nil, errors.New("invalid confirmation record version")
	}

	purpose, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &ConfirmationRecord{
		Purpose: purpose,
	}

	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var accountIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &accountIDLen); err != nil {
		return nil, err
	}

	accountID := make([]byte, accountIDLen)
	if _, err := io.ReadFull(reader, accountID); err != nil {
		return nil, err
	}
	record.AccountID = string(accountID)

	return record, nil
}
