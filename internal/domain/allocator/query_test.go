package allocator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonid/internal/core/apperror"
	"salonid/internal/core/identifier"
)

func TestValidate_Scenarios(t *testing.T) {
	f := newDefaultFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Generate(ctx, "cliente", nil, nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		id     string
		entity *string
		want   bool
	}{
		{"issued id with entity", issued, ptr("cliente"), true},
		{"issued id without entity", issued, nil, true},
		{"never issued", "CL-00000", ptr("cliente"), false},
		{"unknown prefix", "XX-123", nil, false},
		{"prefix of another entity", issued, ptr("cita"), false},
		{"malformed", "CL73841", nil, false},
		{"lowercase", "cl-12345", ptr("cliente"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Validate(ctx, tt.id, tt.entity)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate_UnknownEntity(t *testing.T) {
	f := newDefaultFixture(t)

	_, err := f.svc.Validate(context.Background(), "CL-12345", ptr("dragon"))
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidEntity))
}

func TestValidate_AliasesAreDistinctEntities(t *testing.T) {
	f := newDefaultFixture(t)
	ctx := context.Background()

	id, err := f.svc.Generate(ctx, "profesional", nil, nil)
	require.NoError(t, err)
	assert.Regexp(t, `^ES-`, id)

	ok, err := f.svc.Validate(ctx, id, ptr("profesional"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.Validate(ctx, id, ptr("estilista"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateFormat(t *testing.T) {
	f := newDefaultFixture(t)

	assert.True(t, f.svc.ValidateFormat("CL-1"))
	assert.True(t, f.svc.ValidateFormat("US-12345678901234567890"))
	assert.False(t, f.svc.ValidateFormat("XX-12345"))
	assert.False(t, f.svc.ValidateFormat("CL-"))
}

func TestLookup(t *testing.T) {
	f := newDefaultFixture(t)
	ctx := context.Background()

	_, err := f.svc.Lookup(ctx, "CL-00000")
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.svc.Lookup(ctx, "not-an-id")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	exists, err := f.svc.Exists(ctx, "not-an-id")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEntitiesAndPrefixFor(t *testing.T) {
	table, err := identifier.NewPrefixTable(map[string]string{"cliente": "CL", "giftcard": "GC"})
	require.NoError(t, err)
	f := newDefaultFixture(t, WithPrefixTable(table))

	assert.Equal(t, []string{"cliente", "giftcard"}, f.svc.Entities())
	assert.Equal(t, map[string]string{"cliente": "CL", "giftcard": "GC"}, f.svc.PrefixTable())

	p, err := f.svc.PrefixFor("GiftCard")
	require.NoError(t, err)
	assert.Equal(t, "GC", p)

	_, err = f.svc.PrefixFor("cita")
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidEntity))

	id, err := f.svc.Generate(context.Background(), "giftcard", nil, nil)
	require.NoError(t, err)
	assert.Regexp(t, `^GC-[0-9]{5}$`, id)
}
