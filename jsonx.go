package main

import "github.com/bytedance/sonic"

var fastJSON = sonic.ConfigStd

func fastJSONMarshal(v any) ([]byte, error) {
	return fastJSON.Marshal(v)
}

func fastJSONMarshalIndent(v any) ([]byte, error) {
	return fastJSON.MarshalIndent(v, "", "  ")
}

func fastJSONUnmarshal(data []byte, v any) error {
	return fastJSON.Unmarshal(data, v)
}
