package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/industware/composor/internal/core/domain"
)

func app(id string, deps ...string) domain.Application {
	return domain.Application{
		ID:           id,
		Repo:         "https://example.com/" + id + ".git",
		Ref:          "main",
		ComposeFiles: []string{id + ".yaml"},
		DependsOn:    deps,
	}
}

func ids(apps []domain.Application) []string {
	out := make([]string, len(apps))
	for i, a := range apps {
		out[i] = a.ID
	}
	return out
}

func TestTopoSort(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		result, err := TopoSort(nil)
		require.NoError(t, err)
		assert.Empty(t, result)
	})

	t.Run("chain", func(t *testing.T) {
		result, err := TopoSort([]domain.Application{
			app("web", "api"),
			app("api", "db"),
			app("db"),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"db", "api", "web"}, ids(result))
	})

	t.Run("independent apps sorted by id", func(t *testing.T) {
		result, err := TopoSort([]domain.Application{
			app("zeta"),
			app("alpha"),
			app("mid"),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "mid", "zeta"}, ids(result))
	})

	t.Run("diamond", func(t *testing.T) {
		result, err := TopoSort([]domain.Application{
			app("top", "left", "right"),
			app("left", "base"),
			app("right", "base"),
			app("base"),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"base", "left", "right", "top"}, ids(result))
	})

	t.Run("dependency outside set ignored", func(t *testing.T) {
		result, err := TopoSort([]domain.Application{
			app("api", "db"), // db not requested
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"api"}, ids(result))
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := TopoSort([]domain.Application{
			app("a", "b"),
			app("b", "a"),
			app("c"),
		})
		require.ErrorIs(t, err, domain.ErrCyclicDependency)
		assert.Contains(t, err.Error(), "a")
		assert.Contains(t, err.Error(), "b")
	})

	t.Run("deterministic", func(t *testing.T) {
		apps := []domain.Application{
			app("w1", "base"), app("w2", "base"), app("w3", "base"), app("base"),
		}
		first, err := TopoSort(apps)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := TopoSort(apps)
			require.NoError(t, err)
			assert.Equal(t, ids(first), ids(again))
		}
	})
}
