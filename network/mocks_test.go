package network

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/davedevils/KartNChibi-sub000/storage"
)

// --- Store ---

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetAccountByUsername(ctx context.Context, username string) (storage.Account, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(storage.Account), args.Error(1)
}

func (m *MockStore) GetCharacterByAccount(ctx context.Context, accountID uint32) (storage.Character, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(storage.Character), args.Error(1)
}

func (m *MockStore) CreateCharacter(ctx context.Context, accountID uint32, name string) (storage.Character, error) {
	args := m.Called(ctx, accountID, name)
	return args.Get(0).(storage.Character), args.Error(1)
}

func (m *MockStore) GetVehicles(ctx context.Context, accountID uint32) ([]storage.Vehicle, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]storage.Vehicle), args.Error(1)
}

func (m *MockStore) GetItems(ctx context.Context, accountID uint32) ([]storage.Item, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]storage.Item), args.Error(1)
}

func (m *MockStore) EquipVehicle(ctx context.Context, accountID, vehicleID uint32) error {
	args := m.Called(ctx, accountID, vehicleID)
	return args.Error(0)
}

func (m *MockStore) EquipItem(ctx context.Context, accountID, itemID uint32, slot uint8) error {
	args := m.Called(ctx, accountID, itemID, slot)
	return args.Error(0)
}

func (m *MockStore) PurchaseItem(ctx context.Context, accountID, templateID uint32, price int64) error {
	args := m.Called(ctx, accountID, templateID, price)
	return args.Error(0)
}

func (m *MockStore) IsAccountBanned(ctx context.Context, accountID uint32) (bool, error) {
	args := m.Called(ctx, accountID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) IsIPBanned(ctx context.Context, ip string) (bool, error) {
	args := m.Called(ctx, ip)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) InsertBan(ctx context.Context, id string, accountID uint32, ip, reason string, until time.Time) error {
	args := m.Called(ctx, id, accountID, ip, reason, until)
	return args.Error(0)
}

func (m *MockStore) InsertViolation(ctx context.Context, id string, accountID uint32, vtype, severity, details string) error {
	args := m.Called(ctx, id, accountID, vtype, severity, details)
	return args.Error(0)
}

func (m *MockStore) InsertAnomalousLap(ctx context.Context, accountID uint32, mapID uint32, lapTimeMs int64) error {
	args := m.Called(ctx, accountID, mapID, lapTimeMs)
	return args.Error(0)
}

func (m *MockStore) SaveGhost(ctx context.Context, accountID, mapID uint32, lapTimeMs int64, data []byte) error {
	args := m.Called(ctx, accountID, mapID, lapTimeMs, data)
	return args.Error(0)
}

func (m *MockStore) BestGhost(ctx context.Context, mapID uint32) (storage.Ghost, error) {
	args := m.Called(ctx, mapID)
	return args.Get(0).(storage.Ghost), args.Error(1)
}

func (m *MockStore) LicenseLevel(ctx context.Context, accountID uint32) (uint8, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(uint8), args.Error(1)
}

func (m *MockStore) AdvanceLicense(ctx context.Context, accountID uint32, level uint8) error {
	args := m.Called(ctx, accountID, level)
	return args.Error(0)
}

func (m *MockStore) CompleteMission(ctx context.Context, accountID, missionID uint32) error {
	args := m.Called(ctx, accountID, missionID)
	return args.Error(0)
}
