package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsecrm/syncd/pkg/constants"
)

func validCreate() *Mutation {
	return &Mutation{
		DeviceID:  "dev-1",
		Operation: OpCreate,
		Entity:    "contacts",
		Payload:   `{"name":"Ada"}`,
		Priority:  constants.DefaultPriority,
	}
}

func TestMutationValidate_Create(t *testing.T) {
	m := validCreate()
	require.NoError(t, m.Validate())

	m = validCreate()
	m.Payload = ""
	assert.ErrorContains(t, m.Validate(), "create requires a payload")
}

func TestMutationValidate_Update(t *testing.T) {
	m := validCreate()
	m.Operation = OpUpdate
	m.EntityID = "c-42"
	require.NoError(t, m.Validate())

	m.EntityID = ""
	assert.ErrorContains(t, m.Validate(), "update requires an entity_id")

	m.EntityID = "c-42"
	m.Payload = ""
	assert.ErrorContains(t, m.Validate(), "update requires a payload")
}

func TestMutationValidate_Delete(t *testing.T) {
	m := &Mutation{
		DeviceID:  "dev-1",
		Operation: OpDelete,
		Entity:    "leads",
		EntityID:  "l-7",
		Priority:  constants.DefaultPriority,
	}
	require.NoError(t, m.Validate())

	m.EntityID = ""
	assert.ErrorContains(t, m.Validate(), "delete requires an entity_id")
}

func TestMutationValidate_RejectsUnknownOperationAndEntity(t *testing.T) {
	m := validCreate()
	m.Operation = Operation("upsert")
	assert.ErrorContains(t, m.Validate(), "unknown operation")

	m = validCreate()
	m.Entity = "invoices"
	assert.ErrorContains(t, m.Validate(), "not syncable")
}

func TestMutationValidate_RejectsMalformedPayload(t *testing.T) {
	m := validCreate()
	m.Payload = `{"name":`
	assert.ErrorContains(t, m.Validate(), "not valid JSON")
}

func TestMutationValidate_PriorityRange(t *testing.T) {
	m := validCreate()
	m.Priority = constants.MaxPriority + 1
	assert.ErrorContains(t, m.Validate(), "out of range")

	m.Priority = constants.MinPriority - 1
	assert.ErrorContains(t, m.Validate(), "out of range")
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(1))
	assert.True(t, Retryable(constants.MaxDeliveryAttempts-1))
	assert.False(t, Retryable(constants.MaxDeliveryAttempts))
	assert.False(t, Retryable(constants.MaxDeliveryAttempts+1))
}
