package ddar

func sampleRusage() (rusage, bool) { return rusage{}, false }
