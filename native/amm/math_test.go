package amm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// babylonian is an independent big.Int square root used to check the
// closed-form zap amount.
func babylonian(y *big.Int) *big.Int {
	if y.Cmp(big.NewInt(3)) > 0 {
		z := new(big.Int).Set(y)
		x := new(big.Int).Rsh(y, 1)
		x.Add(x, big.NewInt(1))
		for x.Cmp(z) < 0 {
			z.Set(x)
			next := new(big.Int).Quo(y, x)
			next.Add(next, x)
			x = next.Rsh(next, 1)
		}
		return z
	}
	if y.Sign() != 0 {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}

func referenceSwapIn(amount, reserveIn *big.Int) *big.Int {
	inner := new(big.Int).Mul(amount, big.NewInt(3988000))
	inner.Add(inner, new(big.Int).Mul(reserveIn, big.NewInt(3988009)))
	root := babylonian(new(big.Int).Mul(reserveIn, inner))
	root.Sub(root, new(big.Int).Mul(reserveIn, big.NewInt(1997)))
	return root.Quo(root, big.NewInt(1994))
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "invalid integer %q", s)
	return v
}

func TestGetAmountOutFloors(t *testing.T) {
	out, err := GetAmountOut(big.NewInt(1000), big.NewInt(10000), big.NewInt(10000))
	require.NoError(t, err)
	require.Equal(t, "906", out.String())

	_, err = GetAmountOut(big.NewInt(0), big.NewInt(1), big.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientInputAmount)
	_, err = GetAmountOut(big.NewInt(1), big.NewInt(0), big.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
	_, err = GetAmountOut(big.NewInt(-1), big.NewInt(1), big.NewInt(1))
	require.ErrorIs(t, err, ErrNegativeValue)
}

func TestQuoteAndSqrt(t *testing.T) {
	out, err := Quote(big.NewInt(100), big.NewInt(1000), big.NewInt(3000))
	require.NoError(t, err)
	require.Equal(t, "300", out.String())

	out, err = Quote(big.NewInt(1), big.NewInt(3), big.NewInt(2))
	require.NoError(t, err)
	require.Zero(t, out.Sign())

	root, err := Sqrt(big.NewInt(10))
	require.NoError(t, err)
	require.Equal(t, "3", root.String())

	root, err = Sqrt(mustBig(t, "1000000000000000000000000000000000000"))
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000", root.String())
}

func TestOptimalSwapInMatchesBabylonianReference(t *testing.T) {
	cases := []struct {
		amount  string
		reserve string
	}{
		{"100000000", "2500000000000"},
		{"1000", "1000000"},
		{"1", "1"},
		{"7", "999"},
		{"123456789012345678901234", "987654321098765432109876543"},
		{"500000000000000000000", "1000000000000000000000000"},
	}
	for _, tc := range cases {
		amount := mustBig(t, tc.amount)
		reserve := mustBig(t, tc.reserve)
		got, err := OptimalSwapIn(amount, reserve)
		require.NoError(t, err)
		require.Equal(t, referenceSwapIn(amount, reserve).String(), got.String(), "amount=%s reserve=%s", tc.amount, tc.reserve)
		require.True(t, got.Cmp(amount) < 0, "swap-in must not exceed the deposit")
	}
}

func TestOptimalSwapInIsAboutHalfForSmallTrades(t *testing.T) {
	got, err := OptimalSwapIn(big.NewInt(1000), mustBig(t, "1000000000000"))
	require.NoError(t, err)
	// A tiny trade against deep reserves sells just over half to pay the fee.
	require.Equal(t, "500", got.String())
}

func TestOptimalSwapInOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 200)
	_, err := OptimalSwapIn(huge, huge)
	require.ErrorIs(t, err, ErrOverflow)

	_, err = OptimalSwapIn(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	require.ErrorIs(t, err, ErrOverflow)
}
