package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	recordFileExtension      = ".json"
	recordFileMode           = 0o600
	directoryMode            = 0o700
	recordIndent             = "    "
	errMessageNotFound       = "session not found"
	errMessageInvalidID      = "invalid session id"
	errMessageEmptyDirectory = "sessions directory cannot be empty"
	errMessageCreateDir      = "create sessions directory"
	errMessageReadRecord     = "read session record"
	errMessageDecodeRecord   = "decode session record"
	errMessageEncodeRecord   = "encode session record"
	errMessageWriteRecord    = "write session record"
	errMessageListRecords    = "list session records"
	errMessageDeleteRecord   = "delete session record"
)

var (
	// ErrNotFound reports a missing session record.
	ErrNotFound = errors.New(errMessageNotFound)
	// ErrInvalidID reports a session id that cannot name a record file.
	ErrInvalidID = errors.New(errMessageInvalidID)

	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// Store persists session records.
type Store interface {
	Create(owner string, cookies []Cookie, userAgent string, strategyName string) (Record, error)
	Get(sessionID string) (Record, error)
	Touch(sessionID string) (Record, error)
	List() ([]Summary, error)
	Delete(sessionID string) error
}

// FileStore keeps one JSON file per session in a directory.
type FileStore struct {
	directory string
	now       func() time.Time
	newID     func() string
	mutex     sync.Mutex
}

var _ Store = (*FileStore)(nil)

// FileStoreConfig customizes a FileStore.
type FileStoreConfig struct {
	Directory string
	Clock     func() time.Time
	IDSource  func() string
}

// NewFileStore creates the sessions directory if needed and returns a store rooted there.
func NewFileStore(configuration FileStoreConfig) (*FileStore, error) {
	directory := strings.TrimSpace(configuration.Directory)
	if directory == "" {
		return nil, errors.New(errMessageEmptyDirectory)
	}
	if err := os.MkdirAll(directory, directoryMode); err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageCreateDir, err)
	}
	clock := configuration.Clock
	if clock == nil {
		clock = time.Now
	}
	idSource := configuration.IDSource
	if idSource == nil {
		idSource = newSessionID
	}
	return &FileStore{directory: directory, now: clock, newID: idSource}, nil
}

// Create writes a new record for a successful login.
func (store *FileStore) Create(owner string, cookies []Cookie, userAgent string, strategyName string) (Record, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	timestamp := store.now().UTC()
	copiedCookies := append([]Cookie{}, cookies...)
	record := Record{
		SessionID: store.newID(),
		Owner:     owner,
		Cookies:   copiedCookies,
		UserAgent: userAgent,
		Strategy:  strategyName,
		CreatedAt: timestamp,
		LastUsed:  timestamp,
	}
	if err := store.write(record); err != nil {
		return Record{}, err
	}
	return record, nil
}

// Get loads a record without modifying it.
func (store *FileStore) Get(sessionID string) (Record, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.read(sessionID)
}

// Touch loads a record and advances its LastUsed timestamp.
func (store *FileStore) Touch(sessionID string) (Record, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record, err := store.read(sessionID)
	if err != nil {
		return Record{}, err
	}
	record.LastUsed = store.now().UTC()
	if err := store.write(record); err != nil {
		return Record{}, err
	}
	return record, nil
}

// List returns summaries of every readable record, newest first.
func (store *FileStore) List() ([]Summary, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	entries, err := os.ReadDir(store.directory)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageListRecords, err)
	}
	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordFileExtension) {
			continue
		}
		record, readErr := store.read(strings.TrimSuffix(entry.Name(), recordFileExtension))
		if readErr != nil {
			continue
		}
		summaries = append(summaries, record.Summary())
	}
	sort.SliceStable(summaries, func(left, right int) bool {
		return summaries[left].CreatedAt.After(summaries[right].CreatedAt)
	})
	return summaries, nil
}

// Delete removes a record.
func (store *FileStore) Delete(sessionID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	recordPath, err := store.recordPath(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(recordPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", errMessageDeleteRecord, err)
	}
	return nil
}

func (store *FileStore) read(sessionID string) (Record, error) {
	recordPath, err := store.recordPath(sessionID)
	if err != nil {
		return Record{}, err
	}
	recordBytes, err := os.ReadFile(recordPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%s: %w", errMessageReadRecord, err)
	}
	var record Record
	if err := json.Unmarshal(recordBytes, &record); err != nil {
		return Record{}, fmt.Errorf("%s: %w", errMessageDecodeRecord, err)
	}
	return record, nil
}

func (store *FileStore) write(record Record) error {
	recordPath, err := store.recordPath(record.SessionID)
	if err != nil {
		return err
	}
	recordBytes, err := json.MarshalIndent(record, "", recordIndent)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageEncodeRecord, err)
	}
	temporaryPath := recordPath + ".tmp"
	if err := os.WriteFile(temporaryPath, recordBytes, recordFileMode); err != nil {
		return fmt.Errorf("%s: %w", errMessageWriteRecord, err)
	}
	if err := os.Rename(temporaryPath, recordPath); err != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf("%s: %w", errMessageWriteRecord, err)
	}
	return nil
}

func (store *FileStore) recordPath(sessionID string) (string, error) {
	if !sessionIDPattern.MatchString(sessionID) {
		return "", ErrInvalidID
	}
	return filepath.Join(store.directory, sessionID+recordFileExtension), nil
}

func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
