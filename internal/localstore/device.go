package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
)

const (
	deviceIDKey     = "device_id"
	knownDevicesKey = "known_devices"
)

// DeviceID returns this device's durable identity, generating and persisting
// one on first use. Every queued operation and cached record is stamped with
// it, enabling diagnostic tracing and self-notification suppression.
func (s *Store) DeviceID() (string, error) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(deviceIDKey))
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		id = string(data)
		return nil
	})
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}

	id = uuid.New().String()
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(deviceIDKey), []byte(id))
	})
	if err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	s.logger.Printf("Generated new device id %s", id)
	return id, nil
}

// MarkDeviceSeen records a peer device observed on the realtime feed in the
// diagnostic device registry. Outside the sync-correctness path.
func (s *Store) MarkDeviceSeen(deviceID string, at time.Time) error {
	if deviceID == "" {
		return nil
	}
	s.regMu.Lock()
	defer s.regMu.Unlock()

	devices, err := s.KnownDevices()
	if err != nil {
		return err
	}
	devices[deviceID] = at.UnixMilli()

	data, err := json.Marshal(devices)
	if err != nil {
		return fmt.Errorf("failed to marshal device registry: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(knownDevicesKey), data)
	})
	if err != nil {
		return fmt.Errorf("failed to persist device registry: %w", err)
	}
	return nil
}

// KnownDevices returns the diagnostic registry of device id to last-seen
// millis.
func (s *Store) KnownDevices() (map[string]int64, error) {
	devices := make(map[string]int64)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(knownDevicesKey))
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &devices)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return devices, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read device registry: %w", err)
	}
	return devices, nil
}
