package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/annel0/voxel-store/internal/vec"
	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
)

// Формат конвертов метаданных
const (
	metaMagic   = "VXWM"
	metaVersion = 1

	worldMetaKey    = "world:meta"
	playerKeyPrefix = "player:"
)

// Ошибки уровня метаданных
var (
	// ErrBadFormat — конверт метаданных нечитаем (магия или версия не совпали).
	// Не восстанавливается автоматически: мир считается не загружаемым.
	ErrBadFormat = errors.New("неверный формат метаданных мира")

	// ErrWorldNotFound — метаданные мира отсутствуют в хранилище
	ErrWorldNotFound = errors.New("мир не найден")

	// ErrPlayerNotFound — состояние игрока отсутствует в хранилище
	ErrPlayerNotFound = errors.New("игрок не найден")
)

// WorldMetadata описывает мир в целом. Хранится отдельно от бинарного
// формата чанков, как простая структурированная запись.
type WorldMetadata struct {
	WorldID    uuid.UUID `json:"world_id"`
	Name       string    `json:"name"`
	Seed       int64     `json:"seed"`
	Spawn      vec.Vec3  `json:"spawn"`
	CreatedAt  int64     `json:"created_at"`
	LastPlayed int64     `json:"last_played"`
}

// PlayerState описывает сохраняемое состояние игрока
type PlayerState struct {
	Name       string         `json:"name"`
	Position   vec.Vec3       `json:"position"`
	Health     int            `json:"health"`
	Hunger     int            `json:"hunger"`
	Inventory  map[string]int `json:"inventory"`
	HotbarSlot int            `json:"hotbar_slot"`
}

// metaEnvelope оборачивает каждую запись магией и версией формата
type metaEnvelope struct {
	Magic   string          `json:"magic"`
	Version int             `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// MetaStore хранит метаданные мира и состояния игроков в BadgerDB
type MetaStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewMetaStore открывает (или создаёт) хранилище метаданных
func NewMetaStore(dataPath string) (*MetaStore, error) {
	dbPath := filepath.Join(dataPath, "meta")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &MetaStore{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

// Close закрывает хранилище метаданных
func (ms *MetaStore) Close() error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if !ms.isReady {
		return nil
	}

	ms.isReady = false
	return ms.db.Close()
}

// put сериализует значение в конверт и сохраняет по ключу
func (ms *MetaStore) put(key string, value interface{}) error {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	if !ms.isReady {
		return fmt.Errorf("хранилище метаданных не готово")
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ошибка сериализации %s: %w", key, err)
	}

	data, err := json.Marshal(metaEnvelope{
		Magic:   metaMagic,
		Version: metaVersion,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("ошибка сериализации конверта %s: %w", key, err)
	}

	err = ms.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// get читает значение по ключу и проверяет конверт.
// Возвращает badger.ErrKeyNotFound, если ключ отсутствует.
func (ms *MetaStore) get(key string, value interface{}) error {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	if !ms.isReady {
		return fmt.Errorf("хранилище метаданных не готово")
	}

	var data []byte
	err := ms.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		return err
	}

	var env metaEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if env.Magic != metaMagic {
		return fmt.Errorf("%w: магия %q", ErrBadFormat, env.Magic)
	}
	if env.Version != metaVersion {
		return fmt.Errorf("%w: версия %d, поддерживается %d", ErrBadFormat, env.Version, metaVersion)
	}

	if err := json.Unmarshal(env.Payload, value); err != nil {
		return fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	return nil
}

// SaveWorldMetadata сохраняет метаданные мира
func (ms *MetaStore) SaveWorldMetadata(meta *WorldMetadata) error {
	return ms.put(worldMetaKey, meta)
}

// LoadWorldMetadata загружает метаданные мира
func (ms *MetaStore) LoadWorldMetadata() (*WorldMetadata, error) {
	var meta WorldMetadata
	err := ms.get(worldMetaKey, &meta)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrWorldNotFound
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// SavePlayerState сохраняет состояние игрока
func (ms *MetaStore) SavePlayerState(state *PlayerState) error {
	if state.Name == "" {
		return fmt.Errorf("имя игрока не задано")
	}
	return ms.put(playerKeyPrefix+state.Name, state)
}

// LoadPlayerState загружает состояние игрока по имени
func (ms *MetaStore) LoadPlayerState(name string) (*PlayerState, error) {
	var state PlayerState
	err := ms.get(playerKeyPrefix+name, &state)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// WorldExists проверяет наличие читаемых метаданных мира
func (ms *MetaStore) WorldExists() (bool, error) {
	_, err := ms.LoadWorldMetadata()
	if errors.Is(err, ErrWorldNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
