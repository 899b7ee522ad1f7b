package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"

	"trafficassign/pkg/domain"
)

// KeyPrefix общий префикс ключей результатов распределения
const KeyPrefix = "assign:v1:"

type fingerprint struct {
	h   hash.Hash
	buf [8]byte
}

func (f *fingerprint) int(v int64) {
	binary.LittleEndian.PutUint64(f.buf[:], uint64(v))
	f.h.Write(f.buf[:])
}

func (f *fingerprint) float(v float64) {
	binary.LittleEndian.PutUint64(f.buf[:], math.Float64bits(v))
	f.h.Write(f.buf[:])
}

func (f *fingerprint) tag(s string) {
	f.int(int64(len(s)))
	f.h.Write([]byte(s))
}

// InputHash детерминированный отпечаток сети, центроидов и матрицы спроса.
// Дуги учитываются в порядке LinkID: перестановка строк сетевого файла даёт
// другой ключ, потому что меняется нумерация потоков.
func InputHash(net *domain.Network, zones *domain.ZoneCentroidMap, demand *domain.DemandMatrix) string {
	f := &fingerprint{h: sha256.New()}

	f.tag("links")
	if net != nil {
		f.int(int64(net.LinkCount()))
		for _, l := range net.Links() {
			f.int(l.From)
			f.int(l.To)
			f.float(l.Capacity)
			f.float(l.Length)
			f.float(l.FreeFlowTime)
			f.float(l.Alpha)
			f.float(l.Beta)
		}
	}

	f.tag("zones")
	if zones != nil {
		for _, z := range zones.Zones() {
			nodes, _ := zones.Centroids(z)
			f.int(z)
			f.int(int64(len(nodes)))
			for _, n := range nodes {
				f.int(n)
			}
		}
	}

	f.tag("demand")
	if demand != nil {
		for _, p := range demand.Pairs() {
			v, _ := demand.Get(p.Origin, p.Destination)
			f.int(p.Origin)
			f.int(p.Destination)
			f.float(v)
		}
	}

	return hex.EncodeToString(f.h.Sum(nil))
}

// BuildKey строит ключ кэша; params каноническая строка параметров решателя
func BuildKey(inputHash, params string) string {
	return KeyPrefix + inputHash + ":" + ShortHash([]byte(params))
}

// ShortHash короткий хеш (16 символов)
func ShortHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
