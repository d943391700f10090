package networkgrpc

import "encoding/gob"

func registerGob(sample any) { gob.Register(sample) }
