package storage

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"

	"github.com/leandroasilva/lmcs-db/internal/errs"
	"github.com/leandroasilva/lmcs-db/internal/logentry"
	"github.com/leandroasilva/lmcs-db/internal/vault"
)

// binaryMagic identifies an LMCS binary snapshot container.
const binaryMagic = "LMCS"

// binaryVersion is the container format version.
const binaryVersion = 1

// binaryHeader precedes the payload in a binary snapshot file.
type binaryHeader struct {
	Magic     string `json:"magic"`
	Version   int    `json:"version"`
	Checksum  string `json:"checksum"`
	Encrypted bool   `json:"encrypted"`
}

func payloadChecksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// BinaryStorage stores the whole log as one file: a length-prefixed JSON
// header followed by a length-prefixed payload (the JSON-encoded entry
// array, optionally encrypted), modeled on the teacher's length-prefixed
// WAL frame but holding a single whole-log frame instead of many
// per-record frames.
type BinaryStorage struct {
	cfg     Config
	entries []*logentry.Entry
}

// NewBinaryStorage returns a BinaryStorage backed by cfg.Path.
func NewBinaryStorage(cfg Config) *BinaryStorage {
	return &BinaryStorage{cfg: cfg}
}

func (s *BinaryStorage) Initialize() error {
	f, err := os.Open(s.cfg.Path)
	if os.IsNotExist(err) {
		s.entries = nil
		return nil
	}
	if err != nil {
		return errs.WrapCorruption("storage.binary.open", "failed to open binary snapshot", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	headerLen, err := readU32(r)
	if err == io.EOF {
		s.entries = nil
		return nil
	}
	if err != nil {
		return errs.WrapCorruption("storage.binary.header_len", "failed to read header length", err)
	}

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return errs.WrapCorruption("storage.binary.header", "failed to read header", err)
	}
	var header binaryHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return errs.WrapCorruption("storage.binary.header_decode", "failed to decode header", err)
	}
	if header.Magic != binaryMagic {
		return errs.NewCorruption("storage.binary.bad_magic", "binary snapshot has an unrecognized magic value")
	}

	payloadLen, err := readU32(r)
	if err != nil {
		return errs.WrapCorruption("storage.binary.payload_len", "failed to read payload length", err)
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return errs.WrapCorruption("storage.binary.payload", "failed to read payload", err)
	}
	if header.Checksum != "" && payloadChecksum(payload) != header.Checksum {
		return errs.NewCorruption("storage.binary.checksum_mismatch", "binary snapshot payload checksum mismatch")
	}

	if header.Encrypted {
		if s.cfg.Vault == nil {
			return errs.NewCrypto("storage.binary.no_vault", "snapshot is encrypted but no encryption key was configured")
		}
		vp, uerr := vault.Unmarshal(payload)
		if uerr != nil {
			s.cfg.logger().Warn("binary snapshot envelope is malformed, starting with empty state: %v", uerr)
			s.entries = nil
			return nil
		}
		plain, derr := s.cfg.Vault.Decrypt(vp)
		if derr != nil {
			s.cfg.logger().Warn("binary snapshot failed to decrypt, starting with empty state: %v", derr)
			s.entries = nil
			return nil
		}
		payload = plain
	}

	var entries []*logentry.Entry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return errs.WrapCorruption("storage.binary.entries_decode", "failed to decode entries", err)
	}
	s.entries = entries
	return nil
}

func (s *BinaryStorage) Append(entry *logentry.Entry) error {
	s.entries = append(s.entries, entry.Clone())
	return s.Flush()
}

func (s *BinaryStorage) ReadStream() (EntryIterator, error) {
	snapshot := make([]*logentry.Entry, len(s.entries))
	for i, e := range s.entries {
		snapshot[i] = e.Clone()
	}
	return newSliceIterator(snapshot), nil
}

func (s *BinaryStorage) Flush() error {
	payload, err := json.Marshal(s.entries)
	if err != nil {
		return errs.WrapCorruption("storage.binary.entries_encode", "failed to encode entries", err)
	}

	encrypted := false
	if s.cfg.Vault != nil {
		vp, eerr := s.cfg.Vault.Encrypt(payload)
		if eerr != nil {
			return eerr
		}
		payload, err = json.Marshal(vp)
		if err != nil {
			return errs.WrapCorruption("storage.binary.envelope_encode", "failed to encode encrypted envelope", err)
		}
		encrypted = true
	}

	header := binaryHeader{
		Magic:     binaryMagic,
		Version:   binaryVersion,
		Checksum:  payloadChecksum(payload),
		Encrypted: encrypted,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return errs.WrapCorruption("storage.binary.header_encode", "failed to encode header", err)
	}

	tmp := s.cfg.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errs.WrapCorruption("storage.binary.create", "failed to create binary snapshot", err)
	}

	w := bufio.NewWriter(f)
	if err := writeU32(w, uint32(len(headerBytes))); err != nil {
		f.Close()
		return err
	}
	if _, err := w.Write(headerBytes); err != nil {
		f.Close()
		return errs.WrapCorruption("storage.binary.write_header", "failed to write header", err)
	}
	if err := writeU32(w, uint32(len(payload))); err != nil {
		f.Close()
		return err
	}
	if _, err := w.Write(payload); err != nil {
		f.Close()
		return errs.WrapCorruption("storage.binary.write_payload", "failed to write payload", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errs.WrapCorruption("storage.binary.flush", "failed to flush binary snapshot", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errs.WrapCorruption("storage.binary.sync", "failed to sync binary snapshot", err)
	}
	if err := f.Close(); err != nil {
		return errs.WrapCorruption("storage.binary.close", "failed to close binary snapshot", err)
	}
	if err := os.Rename(tmp, s.cfg.Path); err != nil {
		return errs.WrapCorruption("storage.binary.rename", "failed to finalize binary snapshot", err)
	}
	return nil
}

func (s *BinaryStorage) Close() error {
	return s.Flush()
}

// Clear discards every entry and writes an empty container.
func (s *BinaryStorage) Clear() error {
	s.entries = nil
	return s.Flush()
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	if _, err := w.Write(buf[:]); err != nil {
		return errs.WrapCorruption("storage.binary.write_len", "failed to write length prefix", err)
	}
	return nil
}
