package sniffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisambiguateHeaders(t *testing.T) {
	t.Run("unique headers pass through", func(t *testing.T) {
		in := []string{"Date", "Description", "Amount"}
		assert.Equal(t, in, DisambiguateHeaders(in))
	})

	t.Run("repeated headers get numeric suffixes", func(t *testing.T) {
		out := DisambiguateHeaders([]string{"Date", "Amount", "Amount", "Amount"})
		assert.Equal(t, []string{"Date", "Amount", "Amount_2", "Amount_3"}, out)
	})

	t.Run("duplicate detection is case insensitive", func(t *testing.T) {
		out := DisambiguateHeaders([]string{"amount", "AMOUNT"})
		assert.Equal(t, []string{"amount", "AMOUNT_2"}, out)
	})
}

func TestHashHeaders(t *testing.T) {
	t.Run("order independent", func(t *testing.T) {
		a := HashHeaders([]string{"Date", "Description", "Amount"})
		b := HashHeaders([]string{"Amount", "Date", "Description"})
		assert.Equal(t, a, b)
	})

	t.Run("case and whitespace insensitive", func(t *testing.T) {
		a := HashHeaders([]string{"Post   Date", "Amount"})
		b := HashHeaders([]string{" post date ", "AMOUNT"})
		assert.Equal(t, a, b)
	})

	t.Run("different header sets differ", func(t *testing.T) {
		a := HashHeaders([]string{"Date", "Amount"})
		b := HashHeaders([]string{"Date", "Amount", "Memo"})
		assert.NotEqual(t, a, b)
	})

	t.Run("stable hex digest", func(t *testing.T) {
		h := HashHeaders([]string{"Date"})
		require.Len(t, h, 64)
		assert.Equal(t, h, HashHeaders([]string{"Date"}))
	})
}
