package protocol

// Fixed-width records transmitted inside payloads. The client maps these
// straight onto in-memory structs, so each layout is an exact byte contract:
// sizes, field order and the unknown filler regions must stay as they are.

const (
	VehicleInfoSize   = 32
	ItemInfoSize      = 20
	AccessoryInfoSize = 16
)

// VehicleInfo is the 32-byte kart record.
type VehicleInfo struct {
	TemplateID uint32
	Level      uint8
	Paint      uint8
	StatSpeed  uint8
	StatAccel  uint8
	StatDrift  uint8
	StatBoost  uint8
	Durability uint16
	ExpireAt   uint32
	Unknown    [16]byte // opaque client-side block, echoed as-is
}

func (v *VehicleInfo) Encode(p *Packet) {
	p.WriteUint32(v.TemplateID)
	p.WriteUint8(v.Level)
	p.WriteUint8(v.Paint)
	p.WriteUint8(v.StatSpeed)
	p.WriteUint8(v.StatAccel)
	p.WriteUint8(v.StatDrift)
	p.WriteUint8(v.StatBoost)
	p.WriteUint16(v.Durability)
	p.WriteUint32(v.ExpireAt)
	p.WriteBytes(v.Unknown[:])
}

func (v *VehicleInfo) Decode(p *Packet) {
	v.TemplateID = p.ReadUint32()
	v.Level = p.ReadUint8()
	v.Paint = p.ReadUint8()
	v.StatSpeed = p.ReadUint8()
	v.StatAccel = p.ReadUint8()
	v.StatDrift = p.ReadUint8()
	v.StatBoost = p.ReadUint8()
	v.Durability = p.ReadUint16()
	v.ExpireAt = p.ReadUint32()
	copy(v.Unknown[:], p.ReadBytes(16))
}

// ItemInfo is the 20-byte consumable/item record.
type ItemInfo struct {
	TemplateID uint32
	Quantity   uint16
	Slot       uint8
	Equipped   uint8
	ExpireAt   uint32
	Unknown    [8]byte
}

func (i *ItemInfo) Encode(p *Packet) {
	p.WriteUint32(i.TemplateID)
	p.WriteUint16(i.Quantity)
	p.WriteUint8(i.Slot)
	p.WriteUint8(i.Equipped)
	p.WriteUint32(i.ExpireAt)
	p.WriteBytes(i.Unknown[:])
}

func (i *ItemInfo) Decode(p *Packet) {
	i.TemplateID = p.ReadUint32()
	i.Quantity = p.ReadUint16()
	i.Slot = p.ReadUint8()
	i.Equipped = p.ReadUint8()
	i.ExpireAt = p.ReadUint32()
	copy(i.Unknown[:], p.ReadBytes(8))
}

// AccessoryInfo is the 16-byte character accessory record.
type AccessoryInfo struct {
	TemplateID uint32
	Slot       uint8
	Color      uint8
	Unknown    [10]byte
}

func (a *AccessoryInfo) Encode(p *Packet) {
	p.WriteUint32(a.TemplateID)
	p.WriteUint8(a.Slot)
	p.WriteUint8(a.Color)
	p.WriteBytes(a.Unknown[:])
}

func (a *AccessoryInfo) Decode(p *Packet) {
	a.TemplateID = p.ReadUint32()
	a.Slot = p.ReadUint8()
	a.Color = p.ReadUint8()
	copy(a.Unknown[:], p.ReadBytes(10))
}
