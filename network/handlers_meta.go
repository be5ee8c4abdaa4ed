package network

import (
	"errors"

	"github.com/davedevils/KartNChibi-sub000/protocol"
	"github.com/davedevils/KartNChibi-sub000/storage"
)

// Shop result codes.
const (
	shopOK           = 0
	shopUnknownItem  = 1
	shopInsufficient = 2
	shopError        = 3
)

// shopEntry is one purchasable template. The catalog is fixed server data;
// the client renders names and icons from its own resource tables.
type shopEntry struct {
	TemplateID uint32
	Category   uint8
	Price      int64
}

const (
	categoryVehicle = 0
	categoryItem    = 1
)

var shopCatalog = []shopEntry{
	{TemplateID: 1001, Category: categoryVehicle, Price: 5000},
	{TemplateID: 1002, Category: categoryVehicle, Price: 12000},
	{TemplateID: 1003, Category: categoryVehicle, Price: 30000},
	{TemplateID: 2001, Category: categoryItem, Price: 200},
	{TemplateID: 2002, Category: categoryItem, Price: 350},
	{TemplateID: 2003, Category: categoryItem, Price: 500},
	{TemplateID: 2004, Category: categoryItem, Price: 800},
}

func shopPrice(templateID uint32) (int64, bool) {
	for _, e := range shopCatalog {
		if e.TemplateID == templateID {
			return e.Price, true
		}
	}
	return 0, false
}

func handleShopList(s *Server, sess *Session, pkt *protocol.Packet) {
	reply := protocol.NewExtPacket(protocol.CmdShopList)
	reply.WriteUint8(uint8(len(shopCatalog)))
	for _, e := range shopCatalog {
		reply.WriteUint32(e.TemplateID)
		reply.WriteUint8(e.Category)
		reply.WriteUint64(uint64(e.Price))
	}
	sess.SendPacket(reply)
}

func handleShopBuy(s *Server, sess *Session, pkt *protocol.Packet) {
	templateID := pkt.ReadUint32()

	price, known := shopPrice(templateID)
	if !known {
		sendShopResult(sess, shopUnknownItem, templateID)
		return
	}

	ctx, cancel := newStoreContext()
	defer cancel()
	if err := s.store.PurchaseItem(ctx, sess.AccountID(), templateID, price); err != nil {
		if errors.Is(err, storage.ErrInsufficientFunds) {
			sendShopResult(sess, shopInsufficient, templateID)
			return
		}
		s.log.Error().Err(err).Uint32("account", sess.AccountID()).Uint32("template", templateID).Msg("purchase failed")
		sendShopResult(sess, shopError, templateID)
		return
	}
	sendShopResult(sess, shopOK, templateID)
}

func sendShopResult(sess *Session, code uint8, templateID uint32) {
	reply := protocol.NewExtPacket(protocol.CmdShopBuy)
	reply.WriteUint8(code)
	reply.WriteUint32(templateID)
	sess.SendPacket(reply)
}

func handleInventoryList(s *Server, sess *Session, pkt *protocol.Packet) {
	ctx, cancel := newStoreContext()
	defer cancel()
	items, err := s.store.GetItems(ctx, sess.AccountID())
	if err != nil {
		s.log.Error().Err(err).Uint32("account", sess.AccountID()).Msg("inventory lookup failed")
		items = nil
	}

	reply := protocol.NewExtPacket(protocol.CmdInventoryList)
	reply.WriteUint8(uint8(len(items)))
	for _, it := range items {
		rec := protocol.ItemInfo{
			TemplateID: it.TemplateID,
			Quantity:   it.Quantity,
			Slot:       it.Slot,
			Equipped:   boolByte(it.Equipped),
		}
		rec.Encode(reply)
	}
	sess.SendPacket(reply)
}

func handleItemEquip(s *Server, sess *Session, pkt *protocol.Packet) {
	itemID := pkt.ReadUint32()
	slot := pkt.ReadUint8()

	ctx, cancel := newStoreContext()
	defer cancel()
	if err := s.store.EquipItem(ctx, sess.AccountID(), itemID, slot); err != nil {
		s.log.Warn().Err(err).Uint32("account", sess.AccountID()).Uint32("item", itemID).Msg("item equip failed")
		return
	}

	reply := protocol.NewExtPacket(protocol.CmdItemEquip)
	reply.WriteUint32(itemID)
	reply.WriteUint8(slot)
	sess.SendPacket(reply)
}

func handleGarageList(s *Server, sess *Session, pkt *protocol.Packet) {
	ctx, cancel := newStoreContext()
	defer cancel()
	vehicles, err := s.store.GetVehicles(ctx, sess.AccountID())
	if err != nil {
		s.log.Error().Err(err).Uint32("account", sess.AccountID()).Msg("garage lookup failed")
		vehicles = nil
	}

	reply := protocol.NewExtPacket(protocol.CmdGarageList)
	reply.WriteUint8(uint8(len(vehicles)))
	for _, v := range vehicles {
		rec := protocol.VehicleInfo{
			TemplateID: v.TemplateID,
			Level:      v.Level,
			Paint:      v.Paint,
		}
		rec.Encode(reply)
	}
	sess.SendPacket(reply)
}

func handleVehicleEquip(s *Server, sess *Session, pkt *protocol.Packet) {
	vehicleID := pkt.ReadUint32()

	ctx, cancel := newStoreContext()
	defer cancel()
	if err := s.store.EquipVehicle(ctx, sess.AccountID(), vehicleID); err != nil {
		if errors.Is(err, storage.ErrVehicleNotFound) {
			s.log.Debug().Uint32("account", sess.AccountID()).Uint32("vehicle", vehicleID).Msg("equip of unowned vehicle rejected")
			return
		}
		s.log.Error().Err(err).Uint32("account", sess.AccountID()).Uint32("vehicle", vehicleID).Msg("vehicle equip failed")
		return
	}

	reply := protocol.NewExtPacket(protocol.CmdVehicleEquip)
	reply.WriteUint32(vehicleID)
	sess.SendPacket(reply)
}

// handleTutorialDone grants the first license level once the tutorial
// scenario is reported complete.
func handleTutorialDone(s *Server, sess *Session, pkt *protocol.Packet) {
	ctx, cancel := newStoreContext()
	defer cancel()
	if err := s.store.AdvanceLicense(ctx, sess.AccountID(), 1); err != nil {
		s.log.Error().Err(err).Uint32("account", sess.AccountID()).Msg("tutorial license grant failed")
		return
	}
	sendLicenseStatus(s, sess)
}

func handleLicenseStatus(s *Server, sess *Session, pkt *protocol.Packet) {
	sendLicenseStatus(s, sess)
}

func sendLicenseStatus(s *Server, sess *Session) {
	ctx, cancel := newStoreContext()
	defer cancel()
	level, err := s.store.LicenseLevel(ctx, sess.AccountID())
	if err != nil {
		s.log.Warn().Err(err).Uint32("account", sess.AccountID()).Msg("license lookup failed")
		level = 0
	}

	reply := protocol.NewExtPacket(protocol.CmdLicenseStatus)
	reply.WriteUint8(level)
	sess.SendPacket(reply)
}

// handleLicenseAdvance grants the next license level. Levels are strictly
// sequential; a request that skips ahead is dropped.
func handleLicenseAdvance(s *Server, sess *Session, pkt *protocol.Packet) {
	requested := pkt.ReadUint8()

	ctx, cancel := newStoreContext()
	defer cancel()
	current, err := s.store.LicenseLevel(ctx, sess.AccountID())
	if err != nil {
		s.log.Warn().Err(err).Uint32("account", sess.AccountID()).Msg("license lookup failed")
		return
	}
	if requested != current+1 {
		return
	}
	if err := s.store.AdvanceLicense(ctx, sess.AccountID(), requested); err != nil {
		s.log.Error().Err(err).Uint32("account", sess.AccountID()).Uint8("level", requested).Msg("license advance failed")
		return
	}
	sendLicenseStatus(s, sess)
}

// missionCatalog is the fixed mission table. Completion is tracked
// per-account; reward payout stays client-driven for now.
var missionCatalog = []uint32{101, 102, 103, 201, 202, 301}

func handleMissionList(s *Server, sess *Session, pkt *protocol.Packet) {
	reply := protocol.NewExtPacket(protocol.CmdMissionList)
	reply.WriteUint8(uint8(len(missionCatalog)))
	for _, id := range missionCatalog {
		reply.WriteUint32(id)
	}
	sess.SendPacket(reply)
}

func handleMissionComplete(s *Server, sess *Session, pkt *protocol.Packet) {
	missionID := pkt.ReadUint32()

	known := false
	for _, id := range missionCatalog {
		if id == missionID {
			known = true
			break
		}
	}
	if !known {
		return
	}

	ctx, cancel := newStoreContext()
	defer cancel()
	if err := s.store.CompleteMission(ctx, sess.AccountID(), missionID); err != nil {
		s.log.Error().Err(err).Uint32("account", sess.AccountID()).Uint32("mission", missionID).Msg("mission completion failed")
		return
	}

	reply := protocol.NewExtPacket(protocol.CmdMissionComplete)
	reply.WriteUint32(missionID)
	sess.SendPacket(reply)
}

// maxGhostSize bounds a single replay blob. A full lap of recorded inputs
// fits comfortably; anything bigger is a malformed or hostile payload.
const maxGhostSize = 4096

func handleGhostSave(s *Server, sess *Session, pkt *protocol.Packet) {
	mapID := pkt.ReadUint32()
	lapTimeMs := int64(pkt.ReadUint64())
	size := int(pkt.ReadUint16())
	if size == 0 || size > maxGhostSize || size > pkt.Remaining() {
		return
	}
	data := pkt.ReadBytes(size)

	ctx, cancel := newStoreContext()
	defer cancel()
	if err := s.store.SaveGhost(ctx, sess.AccountID(), mapID, lapTimeMs, data); err != nil {
		s.log.Error().Err(err).Uint32("account", sess.AccountID()).Uint32("map", mapID).Msg("ghost save failed")
	}
}

func handleGhostLoad(s *Server, sess *Session, pkt *protocol.Packet) {
	mapID := pkt.ReadUint32()

	ctx, cancel := newStoreContext()
	defer cancel()
	ghost, err := s.store.BestGhost(ctx, mapID)
	if err != nil {
		if !errors.Is(err, storage.ErrGhostNotFound) {
			s.log.Error().Err(err).Uint32("map", mapID).Msg("ghost lookup failed")
		}
		reply := protocol.NewExtPacket(protocol.CmdGhostLoad)
		reply.WriteUint32(mapID)
		reply.WriteUint16(0)
		sess.SendPacket(reply)
		return
	}

	reply := protocol.NewExtPacket(protocol.CmdGhostLoad)
	reply.WriteUint32(mapID)
	reply.WriteUint16(uint16(len(ghost.Data)))
	reply.WriteBytes(ghost.Data)
	reply.WriteUint64(uint64(ghost.LapTimeMs))
	sess.SendPacket(reply)
}

// handleScenarioStart acknowledges a single-player scenario launch. The
// scenario itself runs client-side; the server only needs to know for the
// tutorial/license bookkeeping on result.
func handleScenarioStart(s *Server, sess *Session, pkt *protocol.Packet) {
	scenarioID := pkt.ReadUint32()

	reply := protocol.NewExtPacket(protocol.CmdScenarioStart)
	reply.WriteUint32(scenarioID)
	reply.WriteUint8(1)
	sess.SendPacket(reply)
}

func handleScenarioResult(s *Server, sess *Session, pkt *protocol.Packet) {
	scenarioID := pkt.ReadUint32()
	cleared := pkt.ReadUint8() == 1
	if !cleared {
		return
	}

	ctx, cancel := newStoreContext()
	defer cancel()
	if err := s.store.CompleteMission(ctx, sess.AccountID(), scenarioID); err != nil {
		s.log.Error().Err(err).Uint32("account", sess.AccountID()).Uint32("scenario", scenarioID).Msg("scenario result save failed")
		return
	}

	reply := protocol.NewExtPacket(protocol.CmdScenarioResult)
	reply.WriteUint32(scenarioID)
	reply.WriteUint8(1)
	sess.SendPacket(reply)
}
