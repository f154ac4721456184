package tests

import "strconv"

// priceAt returns a decimal-string price base+i*0.10, used by tests that
// need a spread of distinct price levels.
func priceAt(base int, i int) string {
	cents := base*100 + i*10
	return strconv.Itoa(cents/100) + "." + pad2(cents%100)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func jsonNumber(id int64) string {
	return strconv.FormatInt(id, 10)
}
