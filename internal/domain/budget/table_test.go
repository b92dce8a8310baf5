package budget

import (
	"testing"

	"github.com/orcamento/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// nature builds a nature with distinct original and current balances, the
// shape tables have when the parser captured balances mid-cycle.
func nature(code string, original, current float64) *Nature {
	return &Nature{
		Code:     code,
		Name:     "Nature " + code,
		Original: dec(original),
		Current:  dec(current),
	}
}

func unit(code string, natures ...*Nature) *Unit {
	return &Unit{Code: code, Name: "UNIT " + code, Natures: natures}
}

func source(code string, units ...*Unit) *Source {
	return &Source{Code: code, Units: units}
}

func mustTable(t *testing.T, sources ...*Source) *BalanceTable {
	t.Helper()
	table, err := NewBalanceTable(sources)
	require.NoError(t, err)
	return table
}

func TestNewNature(t *testing.T) {
	n := NewNature("31.90 11", "Salaries", dec(100))
	assert.Equal(t, "319011", n.Code)
	assert.True(t, n.Current.Equal(n.Original))
	assert.True(t, n.Delta().IsZero())
}

func TestNewBalanceTableValidation(t *testing.T) {
	t.Run("rejects empty table", func(t *testing.T) {
		_, err := NewBalanceTable(nil)
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_INPUT", domainErr.Code)
	})

	t.Run("rejects empty source code", func(t *testing.T) {
		_, err := NewBalanceTable([]*Source{{Code: ""}})
		require.Error(t, err)
	})

	t.Run("rejects non 6-digit unit code", func(t *testing.T) {
		_, err := NewBalanceTable([]*Source{source("500", unit("12345"))})
		require.Error(t, err)
	})

	t.Run("rejects non 6-digit nature code", func(t *testing.T) {
		_, err := NewBalanceTable([]*Source{source("500", unit("140102", nature("31AB11", 10, 10)))})
		require.Error(t, err)
	})

	t.Run("rejects duplicate source code", func(t *testing.T) {
		_, err := NewBalanceTable([]*Source{source("500"), source("500")})
		require.Error(t, err)
	})

	t.Run("rejects duplicate unit code under a source", func(t *testing.T) {
		_, err := NewBalanceTable([]*Source{source("500", unit("140102"), unit("140102"))})
		require.Error(t, err)
	})

	t.Run("rejects duplicate nature code within a unit", func(t *testing.T) {
		_, err := NewBalanceTable([]*Source{
			source("500", unit("140102", nature("319011", 10, 10), nature("319011", 5, 5))),
		})
		require.Error(t, err)
	})

	t.Run("rejects orphan nature", func(t *testing.T) {
		src := source("500")
		src.Units = []*Unit{nil}
		_, err := NewBalanceTable([]*Source{src})
		require.Error(t, err)
	})

	t.Run("normalizes dotted codes", func(t *testing.T) {
		table := mustTable(t, source("500", unit("14.01.02", nature("33.90.30", 10, 10))))
		assert.Equal(t, "140102", table.Sources[0].Units[0].Code)
		assert.Equal(t, "339030", table.Sources[0].Units[0].Natures[0].Code)
	})
}

func TestMarkForbidden(t *testing.T) {
	newTable := func(t *testing.T) *BalanceTable {
		return mustTable(t,
			source("500", unit("140102", nature("319011", 100, 100))),
			source("761", unit("450201", nature("339030", 50, 50))),
		)
	}

	t.Run("accepts known codes", func(t *testing.T) {
		table := newTable(t)
		require.NoError(t, table.MarkForbidden([]string{"761"}, []string{"33.90.30"}))
		assert.True(t, table.SourceForbidden("761"))
		assert.True(t, table.NatureForbidden("339030"))
		assert.False(t, table.SourceForbidden("500"))
		assert.False(t, table.NatureForbidden("319011"))
	})

	t.Run("unknown source leaves table unchanged", func(t *testing.T) {
		table := newTable(t)
		err := table.MarkForbidden([]string{"999"}, nil)
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_FORBIDDEN_SOURCE", domainErr.Code)
		assert.False(t, table.SourceForbidden("999"))
	})

	t.Run("unknown nature leaves table unchanged", func(t *testing.T) {
		table := newTable(t)
		err := table.MarkForbidden(nil, []string{"111111"})
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_FORBIDDEN_NATURE", domainErr.Code)
		assert.False(t, table.NatureForbidden("111111"))
	})
}

func TestDeficits(t *testing.T) {
	table := mustTable(t,
		source("500",
			unit("140102", nature("319011", 100, -30), nature("339030", 200, 200)),
			unit("140103", nature("449052", 50, -5)),
		),
		source("761", unit("450201", nature("339030", 80, -10))),
	)

	t.Run("visits structural order and skips positives", func(t *testing.T) {
		deficits := table.Deficits()
		require.Len(t, deficits, 3)
		assert.Equal(t, "319011", deficits[0].Nature.Code)
		assert.Equal(t, "449052", deficits[1].Nature.Code)
		assert.Equal(t, "339030", deficits[2].Nature.Code)
		assert.True(t, deficits[0].Need().Equal(dec(30)))
	})

	t.Run("is restartable and read-only", func(t *testing.T) {
		first := table.Deficits()
		second := table.Deficits()
		assert.Equal(t, len(first), len(second))
	})

	t.Run("skips forbidden source", func(t *testing.T) {
		require.NoError(t, table.MarkForbidden([]string{"761"}, nil))
		deficits := table.Deficits()
		require.Len(t, deficits, 2)
		for _, d := range deficits {
			assert.Equal(t, "500", d.Source.Code)
		}
	})

	t.Run("skips forbidden nature", func(t *testing.T) {
		require.NoError(t, table.MarkForbidden(nil, []string{"449052"}))
		deficits := table.Deficits()
		require.Len(t, deficits, 1)
		assert.Equal(t, "319011", deficits[0].Nature.Code)
	})
}

func TestTableTotals(t *testing.T) {
	table := mustTable(t,
		source("500", unit("140102",
			nature("319011", 100, -30),
			nature("339030", 200, 200),
			nature("449052", 150, 150),
		)),
	)

	assert.True(t, table.TotalOriginal().Equal(dec(450)))
	assert.True(t, table.TotalCurrent().Equal(dec(320)))
	assert.Equal(t, 1, table.UnitCount())
	assert.Equal(t, 3, table.NatureCount())
}
