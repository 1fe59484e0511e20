package farm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pool is a farm bound to one share token and one input token.
type Pool struct {
	ID                uint64
	ShareToken        common.Address
	InputToken        common.Address
	Oracle            common.Address
	LastRewardBlock   uint64
	AccRewardPerShare *big.Int
	TotalStaked       *big.Int
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.AccRewardPerShare = cloneBig(p.AccRewardPerShare)
	clone.TotalStaked = cloneBig(p.TotalStaked)
	return &clone
}

// Position is a user's stake in one pool.
type Position struct {
	Amount     *big.Int
	RewardDebt *big.Int
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	return &Position{Amount: cloneBig(p.Amount), RewardDebt: cloneBig(p.RewardDebt)}
}

func newPosition() *Position {
	return &Position{Amount: big.NewInt(0), RewardDebt: big.NewInt(0)}
}
