package storage_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/davedevils/KartNChibi-sub000/migrations"
	"github.com/davedevils/KartNChibi-sub000/storage"
)

var repo *storage.PostgresRepo

func TestMain(m *testing.M) {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine3.22",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testusername"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		panic(err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}

	if err := migrations.Migrate(connString); err != nil {
		panic(err)
	}

	repo, err = storage.NewPostgresRepo(ctx, connString)
	if err != nil {
		panic(err)
	}

	code := m.Run()

	repo.Close()
	postgresContainer.Terminate(ctx)
	os.Exit(code)
}

func createAccount(t *testing.T, username string) uint32 {
	t.Helper()
	id, err := repo.CreateAccount(context.Background(), username, "hashed_secret")
	require.NoError(t, err)
	return id
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()

	t.Run("create and fetch", func(t *testing.T) {
		id := createAccount(t, "dao")
		acc, err := repo.GetAccountByUsername(ctx, "dao")
		require.NoError(t, err)
		assert.Equal(t, id, acc.ID)
		assert.Equal(t, "hashed_secret", acc.PasswordHash)
		assert.Zero(t, acc.Coins)
	})

	t.Run("unknown username", func(t *testing.T) {
		_, err := repo.GetAccountByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
	})

	t.Run("duplicate username", func(t *testing.T) {
		createAccount(t, "bazzi")
		_, err := repo.CreateAccount(ctx, "bazzi", "other_hash")
		assert.ErrorIs(t, err, storage.ErrDuplicateName)
	})
}

func TestCharacters(t *testing.T) {
	ctx := context.Background()
	accountID := createAccount(t, "char_owner")

	t.Run("none yet", func(t *testing.T) {
		_, err := repo.GetCharacterByAccount(ctx, accountID)
		assert.ErrorIs(t, err, storage.ErrCharacterNotFound)
	})

	t.Run("create and fetch", func(t *testing.T) {
		created, err := repo.CreateCharacter(ctx, accountID, "Dizni")
		require.NoError(t, err)
		assert.Equal(t, uint8(1), created.Level)

		got, err := repo.GetCharacterByAccount(ctx, accountID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "Dizni", got.Name)
	})

	t.Run("duplicate name", func(t *testing.T) {
		other := createAccount(t, "char_owner2")
		_, err := repo.CreateCharacter(ctx, other, "Dizni")
		assert.ErrorIs(t, err, storage.ErrDuplicateName)
	})
}

func TestPurchaseAndInventory(t *testing.T) {
	ctx := context.Background()
	accountID := createAccount(t, "shopper")

	_, err := repo.GetPool().Exec(ctx, "UPDATE accounts SET coins = 1000 WHERE id = $1", accountID)
	require.NoError(t, err)

	t.Run("insufficient funds", func(t *testing.T) {
		err := repo.PurchaseItem(ctx, accountID, 2001, 5000)
		assert.ErrorIs(t, err, storage.ErrInsufficientFunds)

		items, err := repo.GetItems(ctx, accountID)
		require.NoError(t, err)
		assert.Empty(t, items, "failed purchase must not grant the item")
	})

	t.Run("purchase grants and deducts", func(t *testing.T) {
		require.NoError(t, repo.PurchaseItem(ctx, accountID, 2001, 200))

		acc, err := repo.GetAccountByUsername(ctx, "shopper")
		require.NoError(t, err)
		assert.Equal(t, int64(800), acc.Coins)

		items, err := repo.GetItems(ctx, accountID)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, uint32(2001), items[0].TemplateID)
		assert.Equal(t, uint16(1), items[0].Quantity)
	})

	t.Run("repeat purchase stacks", func(t *testing.T) {
		require.NoError(t, repo.PurchaseItem(ctx, accountID, 2001, 200))

		items, err := repo.GetItems(ctx, accountID)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, uint16(2), items[0].Quantity)
	})

	t.Run("equip item", func(t *testing.T) {
		items, err := repo.GetItems(ctx, accountID)
		require.NoError(t, err)
		require.NotEmpty(t, items)

		require.NoError(t, repo.EquipItem(ctx, accountID, items[0].ID, 2))
		items, err = repo.GetItems(ctx, accountID)
		require.NoError(t, err)
		assert.True(t, items[0].Equipped)
		assert.Equal(t, uint8(2), items[0].Slot)
	})
}

func TestVehicles(t *testing.T) {
	ctx := context.Background()
	accountID := createAccount(t, "driver")

	var first, second uint32
	row := repo.GetPool().QueryRow(ctx,
		"INSERT INTO vehicles(account_id, template_id) VALUES($1, 1001) RETURNING id", accountID)
	require.NoError(t, row.Scan(&first))
	row = repo.GetPool().QueryRow(ctx,
		"INSERT INTO vehicles(account_id, template_id) VALUES($1, 1002) RETURNING id", accountID)
	require.NoError(t, row.Scan(&second))

	t.Run("equip switches exclusively", func(t *testing.T) {
		require.NoError(t, repo.EquipVehicle(ctx, accountID, first))
		require.NoError(t, repo.EquipVehicle(ctx, accountID, second))

		vehicles, err := repo.GetVehicles(ctx, accountID)
		require.NoError(t, err)
		require.Len(t, vehicles, 2)
		assert.False(t, vehicles[0].Equipped)
		assert.True(t, vehicles[1].Equipped)
	})

	t.Run("equip unowned vehicle", func(t *testing.T) {
		err := repo.EquipVehicle(ctx, accountID, 999999)
		assert.ErrorIs(t, err, storage.ErrVehicleNotFound)
	})
}

func TestBans(t *testing.T) {
	ctx := context.Background()
	accountID := createAccount(t, "cheater")

	banned, err := repo.IsAccountBanned(ctx, accountID)
	require.NoError(t, err)
	assert.False(t, banned)

	require.NoError(t, repo.InsertBan(ctx,
		"0b7aadb1-ea09-4cfd-bb7a-dbce0b7aadb1", accountID, "10.1.2.3",
		"speed_hack", time.Now().Add(24*time.Hour)))

	banned, err = repo.IsAccountBanned(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, banned)

	ipBanned, err := repo.IsIPBanned(ctx, "10.1.2.3")
	require.NoError(t, err)
	assert.True(t, ipBanned)

	ipBanned, err = repo.IsIPBanned(ctx, "10.9.9.9")
	require.NoError(t, err)
	assert.False(t, ipBanned)

	t.Run("expired bans do not count", func(t *testing.T) {
		expired := createAccount(t, "reformed")
		require.NoError(t, repo.InsertBan(ctx,
			"1c8bbec2-fb1a-4d0e-8c8b-bec21c8bbec2", expired, "10.4.5.6",
			"old offense", time.Now().Add(-time.Hour)))

		banned, err := repo.IsAccountBanned(ctx, expired)
		require.NoError(t, err)
		assert.False(t, banned)
	})
}

func TestViolationLog(t *testing.T) {
	ctx := context.Background()
	accountID := createAccount(t, "suspect")

	require.NoError(t, repo.InsertViolation(ctx,
		"2d9ccfd3-0c2b-4e1f-9d9c-cfd32d9ccfd3", accountID, "teleport", "high", "jump of 900 units"))
	require.NoError(t, repo.InsertAnomalousLap(ctx, accountID, 3, 4200))

	var count int
	row := repo.GetPool().QueryRow(ctx,
		"SELECT COUNT(*) FROM violations WHERE account_id = $1", accountID)
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}

func TestGhosts(t *testing.T) {
	ctx := context.Background()
	accountID := createAccount(t, "ghost_rider")

	t.Run("none yet", func(t *testing.T) {
		_, err := repo.BestGhost(ctx, 42)
		assert.ErrorIs(t, err, storage.ErrGhostNotFound)
	})

	t.Run("best is fastest", func(t *testing.T) {
		require.NoError(t, repo.SaveGhost(ctx, accountID, 42, 61000, []byte{1, 1, 1}))
		require.NoError(t, repo.SaveGhost(ctx, accountID, 42, 58000, []byte{2, 2, 2}))
		require.NoError(t, repo.SaveGhost(ctx, accountID, 42, 64000, []byte{3, 3, 3}))

		best, err := repo.BestGhost(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, int64(58000), best.LapTimeMs)
		assert.Equal(t, []byte{2, 2, 2}, best.Data)
	})
}

func TestLicensesAndMissions(t *testing.T) {
	ctx := context.Background()
	accountID := createAccount(t, "student_driver")

	level, err := repo.LicenseLevel(ctx, accountID)
	require.NoError(t, err)
	assert.Zero(t, level)

	require.NoError(t, repo.AdvanceLicense(ctx, accountID, 1))
	require.NoError(t, repo.AdvanceLicense(ctx, accountID, 2))
	require.NoError(t, repo.AdvanceLicense(ctx, accountID, 2), "re-grant is a no-op")

	level, err = repo.LicenseLevel(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), level)

	require.NoError(t, repo.CompleteMission(ctx, accountID, 101))
	require.NoError(t, repo.CompleteMission(ctx, accountID, 101))
}
