package rarlist

import "github.com/VictoriaMetrics/fastcache"

// keyCache memoizes the expensive RAR3/RAR5 key-derivation functions per
// (password, salt) pair: re-deriving a RAR3 key costs
// 16*0x4000 SHA-1 rounds, and a multi-volume header-encrypted archive
// would otherwise pay that cost once per volume it opens.
type keyCache struct {
	c *fastcache.Cache
}

func newKeyCache() *keyCache {
	return &keyCache{c: fastcache.New(32 * 1024)}
}

func cacheKey(scheme byte, password string, salt []byte, extra ...byte) []byte {
	k := make([]byte, 0, 1+len(password)+len(salt)+len(extra))
	k = append(k, scheme)
	k = append(k, password...)
	k = append(k, salt...)
	k = append(k, extra...)
	return k
}

// getOrDeriveRAR3 returns the AES-128 key and IV for password/salt,
// deriving and caching them on first use.
func (kc *keyCache) getOrDeriveRAR3(password string, salt []byte) (key, iv []byte) {
	ck := cacheKey('3', password, salt)
	if v, ok := kc.c.HasGet(nil, ck); ok && len(v) == 32 {
		return append([]byte{}, v[:16]...), append([]byte{}, v[16:]...)
	}
	key, iv = rar3S2K(password, salt)
	kc.c.Set(ck, append(append([]byte{}, key...), iv...))
	return key, iv
}

// getOrDeriveRAR5 returns the AES-256 key for password/salt/iterations,
// deriving and caching it on first use.
func (kc *keyCache) getOrDeriveRAR5(password string, salt []byte, iterations uint32) []byte {
	ck := cacheKey('5', password, salt, byte(iterations), byte(iterations>>8), byte(iterations>>16), byte(iterations>>24))
	if v, ok := kc.c.HasGet(nil, ck); ok && len(v) == 32 {
		return append([]byte{}, v...)
	}
	key := rar5KDF(password, salt, iterations)
	kc.c.Set(ck, key)
	return key
}
