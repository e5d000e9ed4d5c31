package roles

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/intentline-hq/intentline/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	executor = common.HexToAddress("0x2222222222222222222222222222222222222222")
	stranger = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func newTestRegistry(t *testing.T) *Registry {
	reg, err := NewRegistry(owner)
	require.NoError(t, err)
	return reg
}

func TestNewRegistryRejectsZeroOwner(t *testing.T) {
	_, err := NewRegistry(common.Address{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestOwnerIsImplicitExecutor(t *testing.T) {
	reg := newTestRegistry(t)

	assert.True(t, reg.IsOwner(owner))
	assert.True(t, reg.IsExecutor(owner))
	assert.False(t, reg.IsExecutor(stranger))
	assert.Empty(t, reg.Executors())
}

func TestAddExecutor(t *testing.T) {
	reg := newTestRegistry(t)

	require.NoError(t, reg.AddExecutor(executor, owner))
	assert.True(t, reg.IsExecutor(executor))
	assert.Len(t, reg.Executors(), 1)

	// granting twice is rejected
	err := reg.AddExecutor(executor, owner)
	assert.ErrorIs(t, err, models.ErrAlreadyExecutor)

	// the owner already holds the role implicitly
	err = reg.AddExecutor(owner, owner)
	assert.ErrorIs(t, err, models.ErrAlreadyExecutor)

	// only the owner grants
	err = reg.AddExecutor(stranger, executor)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	err = reg.AddExecutor(common.Address{}, owner)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestRemoveExecutor(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.AddExecutor(executor, owner))

	err := reg.RemoveExecutor(executor, stranger)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.True(t, reg.IsExecutor(executor))

	require.NoError(t, reg.RemoveExecutor(executor, owner))
	assert.False(t, reg.IsExecutor(executor))

	err = reg.RemoveExecutor(executor, owner)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// the implicit owner role is not revocable
	err = reg.RemoveExecutor(owner, owner)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.True(t, reg.IsExecutor(owner))
}

func TestTransferOwnership(t *testing.T) {
	reg := newTestRegistry(t)

	err := reg.TransferOwnership(stranger, stranger)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	err = reg.TransferOwnership(common.Address{}, owner)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	err = reg.TransferOwnership(owner, owner)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	require.NoError(t, reg.TransferOwnership(stranger, owner))
	assert.True(t, reg.IsOwner(stranger))
	assert.False(t, reg.IsOwner(owner))

	// previous owner loses the implicit executor role
	assert.False(t, reg.IsExecutor(owner))
	assert.True(t, reg.IsExecutor(stranger))
}

func TestGrantedExecutorSurvivesTransfer(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.AddExecutor(executor, owner))
	require.NoError(t, reg.TransferOwnership(stranger, owner))

	assert.True(t, reg.IsExecutor(executor))
	require.NoError(t, reg.RemoveExecutor(executor, stranger))
	assert.False(t, reg.IsExecutor(executor))
}
