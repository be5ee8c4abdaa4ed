package storage

// Account is the launcher-created login identity.
type Account struct {
	ID           uint32
	Username     string
	PasswordHash string
	Coins        int64
}

// Character is the in-game avatar tied to an account.
type Character struct {
	ID        uint32
	AccountID uint32
	Name      string
	Level     uint8
}

// Vehicle is one owned kart.
type Vehicle struct {
	ID         uint32
	AccountID  uint32
	TemplateID uint32
	Level      uint8
	Paint      uint8
	Equipped   bool
}

// Item is one owned consumable or accessory.
type Item struct {
	ID         uint32
	AccountID  uint32
	TemplateID uint32
	Quantity   uint16
	Slot       uint8
	Equipped   bool
}

// Ghost is a saved lap record replay.
type Ghost struct {
	ID        uint32
	AccountID uint32
	MapID     uint32
	LapTimeMs int64
	Data      []byte
}
