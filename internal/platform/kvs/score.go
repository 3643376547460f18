// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package kvs

import (
	"math"
	"strconv"
)

var (
	negInf = math.Inf(-1)
	posInf = math.Inf(1)
)

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
