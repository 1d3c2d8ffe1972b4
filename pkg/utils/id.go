package utils

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// id.go - генерация идентификаторов позиций, сделок и ордеров
//
// ULID сортируется по времени создания, поэтому журнал сделок
// можно упорядочивать по id без отдельного индекса.

var (
	idMu   sync.Mutex
	idMono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	idMono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// NewID возвращает новый ULID в строковом виде
func NewID() string {
	return NewIDAt(time.Now())
}

// NewIDAt возвращает ULID с временной меткой t.
// Внутри одной миллисекунды идентификаторы монотонно растут.
func NewIDAt(t time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), idMono)
	if err != nil {
		// переполнение монотонной энтропии внутри миллисекунды
		return ulid.MustNew(ulid.Timestamp(t.UTC()), cryptoRand.Reader).String()
	}
	return id.String()
}
