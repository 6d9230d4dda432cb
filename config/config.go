package config

import (
	"bufio"
	"github.com/ghodss/yaml"
	"io"
	"io/ioutil"
	"log"
	"os"
	"reflect"
	"strconv"
	"strings"
)

type ReaderProperties struct {
	BufferInitSize     int    `cfg:"buffer-init-size" yaml:"bufferInitSize"`
	BufferMaxSize      int    `cfg:"buffer-max-size" yaml:"bufferMaxSize"`
	SeekableColumnSize int    `cfg:"seekable-column-size" yaml:"seekableColumnSize"`
	ReadTimeoutMillis  int    `cfg:"read-timeout-millis" yaml:"readTimeoutMillis"`
	CancelAddress      string `cfg:"cancel-address" yaml:"cancelAddress"`
	DebugMode          bool   `cfg:"debug-mode" yaml:"debugMode"`
}

var Properties *ReaderProperties

const (
	// MaxColumnSize columns are addressed with 32-bit wire lengths
	MaxColumnSize = 1<<31 - 1
)

func init() {
	Properties = &ReaderProperties{
		BufferInitSize:     8 * 1024,
		BufferMaxSize:      MaxColumnSize,
		SeekableColumnSize: 8 * 1024,
		ReadTimeoutMillis:  0,
		CancelAddress:      "",
		DebugMode:          false,
	}
}

func parse(reader io.Reader) *ReaderProperties {
	configs := Properties
	cfgMap := make(map[string]string)
	scanner := bufio.NewScanner(reader)
	// scan config file
	for scanner.Scan() {
		line := scanner.Text()
		// skip comments
		if len(line) > 0 && line[0] == '#' {
			continue
		}
		// get gap between key and value
		idx := strings.IndexAny(line, " ")
		if idx > 0 && idx < len(line)-1 {
			key := line[0:idx]
			value := strings.Trim(line[idx+1:], " ")
			// put key value into temp map
			cfgMap[strings.ToLower(key)] = value
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalln(err)
	}

	t := reflect.TypeOf(configs)
	v := reflect.ValueOf(configs)
	n := t.Elem().NumField()
	for i := 0; i < n; i++ {
		// use reflection to get fields
		field := t.Elem().Field(i)
		fieldValue := v.Elem().Field(i)
		key, ok := field.Tag.Lookup("cfg")
		if !ok {
			key = field.Name
		}
		value, ok := cfgMap[strings.ToLower(key)]
		if !ok {
			continue
		}
		switch field.Type.Kind() {
		case reflect.String:
			fieldValue.SetString(value)
		case reflect.Int:
			num, err := strconv.ParseInt(value, 10, 64)
			if err == nil {
				fieldValue.SetInt(num)
			}
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(value)
			if err == nil {
				fieldValue.SetBool(boolVal)
			}
		}
	}
	return configs
}

func parseYAML(file *os.File) *ReaderProperties {
	configs := Properties
	bytes, err := ioutil.ReadAll(file)
	if err != nil {
		panic(err)
	}
	err = yaml.Unmarshal(bytes, configs)
	if err != nil {
		panic(err)
	}
	return configs
}

func LoadConfigs(configFilePath string) {
	file, err := os.Open(configFilePath)
	if err != nil {
		panic(err)
	}
	defer file.Close()
	Properties = parseYAML(file)
}
