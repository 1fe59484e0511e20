package farm

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	configKey      = []byte("farm/config")
	poolCountKey   = []byte("farm/pool/count")
	poolPrefix     = []byte("farm/pool/")
	pairIndexPfx   = []byte("farm/pool-pair/")
	positionPrefix = []byte("farm/position/")
	owedPrefix     = []byte("farm/owed/")
)

func uint64Bytes(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func poolKey(id uint64) []byte {
	return append(append([]byte{}, poolPrefix...), uint64Bytes(id)...)
}

func pairIndexKey(share, input common.Address) []byte {
	key := append(append([]byte{}, pairIndexPfx...), share.Bytes()...)
	return append(key, input.Bytes()...)
}

func positionKey(id uint64, user common.Address) []byte {
	key := append(append([]byte{}, positionPrefix...), uint64Bytes(id)...)
	return append(key, user.Bytes()...)
}

func owedKey(id uint64, user common.Address) []byte {
	key := append(append([]byte{}, owedPrefix...), uint64Bytes(id)...)
	return append(key, user.Bytes()...)
}

// registry is the append-only pool catalog plus the stored global config.
type registry struct {
	state State
}

func (r registry) config() (GlobalConfig, error) {
	var cfg GlobalConfig
	ok, err := r.state.KVGet(configKey, &cfg)
	if err != nil {
		return GlobalConfig{}, err
	}
	if !ok {
		return GlobalConfig{}, fmt.Errorf("farm: config not initialised")
	}
	return cfg, nil
}

func (r registry) putConfig(cfg GlobalConfig) error {
	return r.state.KVPut(configKey, cfg.Clone())
}

func (r registry) hasConfig() (bool, error) {
	return r.state.KVGet(configKey, nil)
}

func (r registry) count() (uint64, error) {
	var count uint64
	if _, err := r.state.KVGet(poolCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r registry) pool(id uint64) (*Pool, error) {
	pool := new(Pool)
	ok, err := r.state.KVGet(poolKey(id), pool)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPoolNotFound, id)
	}
	return pool, nil
}

func (r registry) putPool(pool *Pool) error {
	return r.state.KVPut(poolKey(pool.ID), pool.Clone())
}

func (r registry) hasPair(share, input common.Address) (bool, error) {
	return r.state.KVGet(pairIndexKey(share, input), nil)
}

// add assigns the next id, stores the pool and indexes its pair.
func (r registry) add(pool *Pool) (uint64, error) {
	id, err := r.count()
	if err != nil {
		return 0, err
	}
	pool.ID = id
	if err := r.putPool(pool); err != nil {
		return 0, err
	}
	if err := r.state.KVPut(pairIndexKey(pool.ShareToken, pool.InputToken), id); err != nil {
		return 0, err
	}
	if err := r.state.KVPut(poolCountKey, id+1); err != nil {
		return 0, err
	}
	return id, nil
}
